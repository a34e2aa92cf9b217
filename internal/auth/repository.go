package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for the auth module. It is the
// only surface through which the credential store and the refresh-token
// ledger touch the database.
type Repository interface {
	FindAccountByUsername(ctx context.Context, username string) (*Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	InsertAccount(ctx context.Context, acc *Account) error
	TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertRefreshToken(ctx context.Context, rec RefreshTokenRecord) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error)
	// RevokeRefreshToken marks the token revoked. Unknown or already revoked
	// tokens are a no-op, not an error.
	RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error
	// ConsumeRefreshToken atomically revokes a live, unexpired token and
	// returns its account id. Exactly one concurrent caller can win; all
	// others get ErrNotFound.
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) error
	// DeleteExpiredTokens removes tokens whose expiry or revocation happened
	// before the cutoff and returns the number of rows deleted.
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}
