package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/austral-erp/austral-erp/testing"
)

func newTestRouter(t *testing.T, repo *mockRepository) http.Handler {
	t.Helper()
	tokens := NewTokenIssuer("test-secret", time.Hour)
	ledger := NewLedger(repo, 24*time.Hour, nil, nil, nil)
	service := NewService(repo, NewHasher(4), tokens, ledger, nil, nil, nil)
	handler := NewHandler(nil, service, tokens)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body
}

func TestHandlerLogin(t *testing.T) {
	repo := newMockRepository()
	acc := seedAccount(t, repo, "ana", "secret123", false)
	router := newTestRouter(t, repo)

	res := postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "secret123"})
	require.Equal(t, http.StatusOK, res.Code)

	body := decodeBody(t, res)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["refreshToken"])

	usuario, ok := body["usuario"].(map[string]any)
	require.True(t, ok, "response must carry the usuario object")
	assert.Equal(t, "ana", usuario["username"])
	assert.Equal(t, acc.ID.String(), usuario["id"])
	for key := range usuario {
		assert.NotContains(t, strings.ToLower(key), "password")
	}
}

func TestHandlerLoginWrongPassword(t *testing.T) {
	repo := newMockRepository()
	seedAccount(t, repo, "ana", "secret123", false)
	router := newTestRouter(t, repo)

	res := postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.NotEmpty(t, decodeBody(t, res)["error"])
}

func TestHandlerLoginUnknownUser(t *testing.T) {
	router := newTestRouter(t, newMockRepository())

	res := postJSON(t, router, "/auth/login", map[string]string{"username": "nobody", "password": "whatever1"})
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerLoginBadBody(t *testing.T) {
	router := newTestRouter(t, newMockRepository())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	// Unknown fields are rejected as well.
	res = postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "x", "extra": "y"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = postJSON(t, router, "/auth/login", map[string]string{"username": "ana"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerRegister(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(t, repo)

	res := postJSON(t, router, "/auth/register", map[string]string{"username": "pedro", "password": "secret123"})
	require.Equal(t, http.StatusCreated, res.Code)

	usuario, ok := decodeBody(t, res)["usuario"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pedro", usuario["username"])

	res = postJSON(t, router, "/auth/register", map[string]string{"username": "pedro", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestHandlerRegisterIgnoresRoleFlagsAnonymously(t *testing.T) {
	repo := newMockRepository()
	router := newTestRouter(t, repo)

	res := postJSON(t, router, "/auth/register", map[string]any{
		"username": "intruso", "password": "secret123", "superuser": true, "admin": true,
	})
	require.Equal(t, http.StatusCreated, res.Code)

	usuario, ok := decodeBody(t, res)["usuario"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, usuario["superuser"])
	assert.Equal(t, false, usuario["admin"])
}

func TestHandlerRegisterHonoursRoleFlagsForPrivilegedCaller(t *testing.T) {
	repo := newMockRepository()
	admin := seedAccount(t, repo, "root", "secret123", false)
	repo.mu.Lock()
	repo.accounts[admin.ID].Superuser = true
	repo.mu.Unlock()
	router := newTestRouter(t, repo)

	login := decodeBody(t, postJSON(t, router, "/auth/login", map[string]string{"username": "root", "password": "secret123"}))
	accessToken := login["token"].(string)

	encoded, err := json.Marshal(map[string]any{
		"username": "operador", "password": "secret123", "admin": true,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusCreated, res.Code)

	usuario, ok := decodeBody(t, res)["usuario"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, usuario["admin"])
	assert.Equal(t, false, usuario["superuser"])
}

func TestHandlerRegisterShortPassword(t *testing.T) {
	router := newTestRouter(t, newMockRepository())

	res := postJSON(t, router, "/auth/register", map[string]string{"username": "pedro", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerRefreshFlow(t *testing.T) {
	repo := newMockRepository()
	seedAccount(t, repo, "ana", "secret123", false)
	router := newTestRouter(t, repo)

	login := decodeBody(t, postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "secret123"}))
	refreshToken := login["refreshToken"].(string)

	res := postJSON(t, router, "/auth/refresh", map[string]string{"refreshToken": refreshToken})
	require.Equal(t, http.StatusOK, res.Code)
	refreshed := decodeBody(t, res)
	assert.NotEmpty(t, refreshed["token"])
	assert.NotEqual(t, refreshToken, refreshed["refreshToken"])

	// The rotated-out token is dead.
	res = postJSON(t, router, "/auth/refresh", map[string]string{"refreshToken": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerLogout(t *testing.T) {
	repo := newMockRepository()
	seedAccount(t, repo, "ana", "secret123", false)
	router := newTestRouter(t, repo)

	login := decodeBody(t, postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "secret123"}))
	refreshToken := login["refreshToken"].(string)

	res := postJSON(t, router, "/auth/logout", map[string]string{"refreshToken": refreshToken})
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, decodeBody(t, res)["mensaje"])

	res = postJSON(t, router, "/auth/refresh", map[string]string{"refreshToken": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerLogoutUnknownToken(t *testing.T) {
	router := newTestRouter(t, newMockRepository())

	res := postJSON(t, router, "/auth/logout", map[string]string{"refreshToken": "never-issued"})
	assert.Equal(t, http.StatusOK, res.Code, "logout must not leak token validity")
}

func TestHandlerMe(t *testing.T) {
	repo := newMockRepository()
	seedAccount(t, repo, "ana", "secret123", false)
	router := newTestRouter(t, repo)

	login := decodeBody(t, postJSON(t, router, "/auth/login", map[string]string{"username": "ana", "password": "secret123"}))
	accessToken := login["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	usuario, ok := decodeBody(t, res)["usuario"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ana", usuario["username"])
}

func TestHandlerMeRequiresToken(t *testing.T) {
	router := newTestRouter(t, newMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
