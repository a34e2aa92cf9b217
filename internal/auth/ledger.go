package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// ReuseReporter is notified when an already-revoked refresh token is
// presented again, which is treated as a possible compromise of the account.
type ReuseReporter interface {
	ReportReuse(ctx context.Context, accountID uuid.UUID) error
}

// Ledger manages the lifecycle of persisted, revocable refresh tokens.
type Ledger struct {
	repo   Repository
	ttl    time.Duration
	reuse  ReuseReporter
	audit  Auditor
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger constructs a Ledger. reporter and audit may be nil when reuse
// detection has no downstream consumer.
func NewLedger(repo Repository, ttl time.Duration, reporter ReuseReporter, audit Auditor, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, ttl: ttl, reuse: reporter, audit: audit, logger: logger, now: time.Now}
}

// newRawToken returns a high-entropy opaque token value.
func newRawToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashToken derives the persisted form of a raw token value.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue creates a refresh token for the account and returns the raw value.
// Only the SHA-256 digest is persisted.
func (l *Ledger) Issue(ctx context.Context, accountID uuid.UUID) (string, error) {
	raw, err := newRawToken()
	if err != nil {
		return "", err
	}
	now := l.now().UTC()
	rec := RefreshTokenRecord{
		ID:        uuid.New(),
		TokenHash: hashToken(raw),
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.repo.InsertRefreshToken(ctx, rec); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return raw, nil
}

// Validate resolves a raw token to its account. Unknown, revoked and expired
// tokens all yield ErrUnauthorized without distinction.
func (l *Ledger) Validate(ctx context.Context, raw string) (uuid.UUID, error) {
	rec, err := l.repo.FindRefreshToken(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return uuid.Nil, shared.ErrUnauthorized
		}
		return uuid.Nil, err
	}
	if rec.Revoked || !rec.ExpiresAt.After(l.now()) {
		return uuid.Nil, shared.ErrUnauthorized
	}
	return rec.AccountID, nil
}

// Revoke marks the token revoked. It is idempotent and never reveals whether
// the token existed.
func (l *Ledger) Revoke(ctx context.Context, raw string) error {
	return l.repo.RevokeRefreshToken(ctx, hashToken(raw), l.now())
}

// RevokeAll revokes every live token owned by the account.
func (l *Ledger) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	return l.repo.RevokeAllForAccount(ctx, accountID, l.now())
}

// Rotate atomically revokes the presented token and issues a replacement
// bound to the same account. Of N concurrent rotations of one token exactly
// one succeeds. Presenting an already-revoked token triggers reuse handling:
// the whole account's tokens are scheduled for revocation.
func (l *Ledger) Rotate(ctx context.Context, raw string) (string, uuid.UUID, error) {
	hash := hashToken(raw)
	accountID, err := l.repo.ConsumeRefreshToken(ctx, hash, l.now())
	if err == nil {
		newRaw, issueErr := l.Issue(ctx, accountID)
		if issueErr != nil {
			return "", uuid.Nil, issueErr
		}
		return newRaw, accountID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return "", uuid.Nil, err
	}
	l.detectReuse(ctx, hash)
	return "", uuid.Nil, shared.ErrUnauthorized
}

// detectReuse checks whether the losing token was revoked rather than
// unknown and, if so, audits and reports the owning account.
func (l *Ledger) detectReuse(ctx context.Context, hash string) {
	if l.reuse == nil && l.audit == nil {
		return
	}
	rec, err := l.repo.FindRefreshToken(ctx, hash)
	if err != nil || !rec.Revoked {
		return
	}
	l.logger.Warn("revoked refresh token presented again",
		slog.String("account_id", rec.AccountID.String()))
	if l.audit != nil {
		if err := l.audit.Record(ctx, shared.AuditLog{
			ActorID: rec.AccountID.String(),
			Action:  "refresh_reuse",
			Entity:  "account",
			At:      l.now().UTC(),
		}); err != nil {
			l.logger.Warn("record reuse audit log", slog.Any("error", err))
		}
	}
	if l.reuse != nil {
		if err := l.reuse.ReportReuse(ctx, rec.AccountID); err != nil {
			l.logger.Warn("report token reuse", slog.Any("error", err))
		}
	}
}
