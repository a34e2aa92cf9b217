package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTokenStore struct {
	deleted      int64
	deleteErr    error
	lastCutoff   time.Time
	revokedIDs   []uuid.UUID
	revokeAllErr error
}

func (m *mockTokenStore) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.lastCutoff = cutoff
	return m.deleted, nil
}

func (m *mockTokenStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	if m.revokeAllErr != nil {
		return m.revokeAllErr
	}
	m.revokedIDs = append(m.revokedIDs, accountID)
	return nil
}

func TestPurgeJobDeletesWithRetentionCutoff(t *testing.T) {
	store := &mockTokenStore{deleted: 7}
	job := NewPurgeJob(store, 48*time.Hour, nil)

	err := job.ProcessTask(context.Background(), NewPurgeTokensTask())
	require.NoError(t, err)

	wantCutoff := time.Now().UTC().Add(-48 * time.Hour)
	assert.WithinDuration(t, wantCutoff, store.lastCutoff, 5*time.Second)
}

func TestPurgeJobPropagatesStoreError(t *testing.T) {
	store := &mockTokenStore{deleteErr: errors.New("connection reset")}
	job := NewPurgeJob(store, time.Hour, nil)

	err := job.ProcessTask(context.Background(), NewPurgeTokensTask())
	assert.Error(t, err)
}

func TestRevokeAccountJob(t *testing.T) {
	store := &mockTokenStore{}
	job := NewRevokeAccountJob(store, nil)
	accountID := uuid.New()

	task, err := NewRevokeAccountTask(RevokeAccountPayload{AccountID: accountID.String(), Reason: "refresh token reuse"})
	require.NoError(t, err)

	require.NoError(t, job.ProcessTask(context.Background(), task))
	require.Len(t, store.revokedIDs, 1)
	assert.Equal(t, accountID, store.revokedIDs[0])
}

func TestRevokeAccountJobSkipsBadPayload(t *testing.T) {
	store := &mockTokenStore{}
	job := NewRevokeAccountJob(store, nil)

	err := job.ProcessTask(context.Background(), asynq.NewTask(TaskRevokeAccount, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewRevokeAccountTask(RevokeAccountPayload{AccountID: "not-a-uuid"})
	require.NoError(t, err)
	err = job.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.Empty(t, store.revokedIDs)
}

func TestJobsHealthEncodesJSON(t *testing.T) {
	handler := NewHandler(nil, nil)
	r := chi.NewRouter()
	r.Route("/jobs", handler.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var body struct {
		Queue   string `json:"queue"`
		Pending int    `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body.Queue)
	assert.Equal(t, 0, body.Pending)
}
