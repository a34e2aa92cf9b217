package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, username, password_hash, is_superuser, is_admin, company_id, suspended, last_access_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var acc Account
	err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.Superuser, &acc.Admin, &acc.CompanyID, &acc.Suspended, &acc.LastAccessAt, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// FindAccountByUsername fetches an account by its exact username.
func (r *PGRepository) FindAccountByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// FindAccountByID fetches an account by id.
func (r *PGRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// InsertAccount persists a new account. Duplicate usernames surface as
// shared.ErrConflict.
func (r *PGRepository) InsertAccount(ctx context.Context, acc *Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO accounts (id, username, password_hash, is_superuser, is_admin, company_id, suspended, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.Superuser, acc.Admin, acc.CompanyID, acc.Suspended, acc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrConflict
		}
		return err
	}
	return nil
}

// TouchLastAccess records a successful login timestamp.
func (r *PGRepository) TouchLastAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_access_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}

// InsertRefreshToken persists a newly issued refresh token.
func (r *PGRepository) InsertRefreshToken(ctx context.Context, rec RefreshTokenRecord) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO refresh_tokens (id, token_hash, account_id, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, FALSE)`,
		rec.ID, rec.TokenHash, rec.AccountID, rec.IssuedAt.UTC(), rec.ExpiresAt.UTC())
	return err
}

// FindRefreshToken fetches a token record by its hash.
func (r *PGRepository) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error) {
	var rec RefreshTokenRecord
	err := r.pool.QueryRow(ctx, `SELECT id, token_hash, account_id, issued_at, expires_at, revoked, revoked_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&rec.ID, &rec.TokenHash, &rec.AccountID, &rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked, &rec.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// RevokeRefreshToken marks a token revoked. Idempotent.
func (r *PGRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND NOT revoked`, tokenHash, at.UTC())
	return err
}

// ConsumeRefreshToken is the rotation compare-and-set: it revokes the token
// only if it is still live, so concurrent rotations of the same token cannot
// both succeed.
func (r *PGRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := r.pool.QueryRow(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING account_id`, tokenHash, now.UTC()).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, shared.ErrNotFound
		}
		return uuid.Nil, err
	}
	return accountID, nil
}

// RevokeAllForAccount revokes every live token owned by the account.
func (r *PGRepository) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND NOT revoked`, accountID, at.UTC())
	return err
}

// DeleteExpiredTokens purges tokens expired or revoked before the cutoff.
func (r *PGRepository) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR (revoked AND revoked_at < $1)`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
