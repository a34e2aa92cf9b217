package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Auditor records auth events. Satisfied by shared.AuditLogger.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockedError signals a throttled login. It unwraps to ErrUnauthorized so
// the taxonomy at the service boundary stays unchanged.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("login locked for %s", e.RetryAfter)
}

func (e *LockedError) Unwrap() error { return shared.ErrUnauthorized }

// LoginResult is the contract returned to the consuming frontend. Existing
// fields must not be renamed or removed.
type LoginResult struct {
	Account      AccountView `json:"usuario"`
	AccessToken  string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
}

// RefreshResult carries the rotated token pair.
type RefreshResult struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterInput collects the fields accepted at registration. Role flags are
// only honoured for privileged callers; the route-level guard decides that.
type RegisterInput struct {
	Username  string
	Password  string
	Superuser bool
	Admin     bool
	CompanyID uuid.UUID
}

// Service orchestrates login, registration, refresh and logout.
type Service struct {
	repo     Repository
	hasher   *Hasher
	tokens   *TokenIssuer
	ledger   *Ledger
	throttle *LoginThrottle
	audit    Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service. throttle and audit may be nil.
func NewService(repo Repository, hasher *Hasher, tokens *TokenIssuer, ledger *Ledger, throttle *LoginThrottle, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		ledger:   ledger,
		throttle: throttle,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Login verifies credentials and opens a session. Unknown and suspended
// accounts report ErrNotFound; a wrong password reports ErrUnauthorized and
// leaves the last-access timestamp untouched.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, shared.ErrValidation
	}

	if locked, retryAfter, err := s.throttle.Locked(ctx, username); err != nil {
		s.logger.Warn("login throttle check", slog.Any("error", err))
	} else if locked {
		return nil, &LockedError{RetryAfter: retryAfter}
	}

	acc, err := s.repo.FindAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acc.Suspended {
		return nil, shared.ErrNotFound
	}

	if !s.hasher.Verify(password, acc.PasswordHash) {
		if err := s.throttle.RegisterFailure(ctx, username); err != nil {
			s.logger.Warn("register login failure", slog.Any("error", err))
		}
		s.recordAudit(ctx, acc.ID.String(), "login_failed")
		return nil, shared.ErrUnauthorized
	}

	if err := s.throttle.Reset(ctx, username); err != nil {
		s.logger.Warn("reset login throttle", slog.Any("error", err))
	}
	if err := s.repo.TouchLastAccess(ctx, acc.ID, s.now()); err != nil {
		return nil, fmt.Errorf("record last access: %w", err)
	}

	access, err := s.tokens.IssueAccess(acc)
	if err != nil {
		return nil, err
	}
	refresh, err := s.ledger.Issue(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, acc.ID.String(), "login")
	return &LoginResult{Account: acc.View(), AccessToken: access, RefreshToken: refresh}, nil
}

// Register creates an account with a hashed password. Duplicate usernames
// report ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AccountView, error) {
	if in.Username == "" || in.Password == "" {
		return nil, shared.ErrValidation
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acc := &Account{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: digest,
		Superuser:    in.Superuser,
		Admin:        in.Admin,
		CompanyID:    in.CompanyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertAccount(ctx, acc); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return nil, shared.ErrConflict
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	s.recordAudit(ctx, acc.ID.String(), "register")
	view := acc.View()
	return &view, nil
}

// Refresh rotates the presented refresh token and issues a fresh access
// token. Unknown, expired and revoked tokens are indistinguishable to the
// caller; a suspended or vanished account invalidates the rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, shared.ErrValidation
	}

	newRefresh, accountID, err := s.ledger.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	acc, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil || acc.Suspended {
		if revokeErr := s.ledger.Revoke(ctx, newRefresh); revokeErr != nil {
			s.logger.Warn("revoke rotated token", slog.Any("error", revokeErr))
		}
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("load account: %w", err)
		}
		return nil, shared.ErrUnauthorized
	}

	access, err := s.tokens.IssueAccess(acc)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout revokes the refresh token. It succeeds even when the token was
// unknown or already revoked, so callers cannot probe token validity.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return shared.ErrValidation
	}
	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.recordAudit(ctx, "", "logout")
	return nil
}

// Profile returns the secret-free view of an account.
func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*AccountView, error) {
	acc, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	view := acc.View()
	return &view, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: actorID,
		Action:  action,
		Entity:  "account",
		At:      s.now().UTC(),
	}); err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}
