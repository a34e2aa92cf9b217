package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// identityFromRequest resolves the bearer token into an identity, or nil
// when no valid token is present.
func identityFromRequest(tokens *TokenIssuer, r *http.Request) *shared.Identity {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil
	}
	claims, err := tokens.VerifyAccess(raw)
	if err != nil {
		return nil
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil
	}
	companyID, _ := uuid.Parse(claims.CompanyID)
	return &shared.Identity{
		AccountID: accountID,
		Username:  claims.Username,
		Superuser: claims.Superuser,
		Admin:     claims.Admin,
		CompanyID: companyID,
	}
}

// RequireAuth verifies the bearer access token and stores the resulting
// identity in the request context. Requests without a valid token get 401.
func RequireAuth(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFromRequest(tokens, r)
			if identity == nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// AttachIdentity stores the bearer identity in the request context when a
// valid token is present but lets anonymous requests through.
func AttachIdentity(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := identityFromRequest(tokens, r); identity != nil {
				r = r.WithContext(shared.ContextWithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "no autorizado"})
}
