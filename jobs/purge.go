package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TokenStore is the slice of the auth repository the jobs need.
type TokenStore interface {
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) error
}

// PurgeJob deletes refresh tokens that expired or were revoked longer than
// the retention window ago.
type PurgeJob struct {
	store     TokenStore
	retention time.Duration
	logger    *slog.Logger
}

// NewPurgeJob constructs a PurgeJob.
func NewPurgeJob(store TokenStore, retention time.Duration, logger *slog.Logger) *PurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeJob{store: store, retention: retention, logger: logger}
}

// ProcessTask handles a TaskPurgeTokens task.
func (j *PurgeJob) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.store.DeleteExpiredTokens(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge refresh tokens", slog.Any("error", err))
		return err
	}
	j.logger.Info("purged refresh tokens", slog.Int64("deleted", deleted))
	return nil
}

// RevokeAccountJob revokes every refresh token owned by one account.
type RevokeAccountJob struct {
	store  TokenStore
	logger *slog.Logger
}

// NewRevokeAccountJob constructs a RevokeAccountJob.
func NewRevokeAccountJob(store TokenStore, logger *slog.Logger) *RevokeAccountJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevokeAccountJob{store: store, logger: logger}
}

// ProcessTask handles a TaskRevokeAccount task.
func (j *RevokeAccountJob) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload RevokeAccountPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return asynq.SkipRetry
	}
	if err := j.store.RevokeAllForAccount(ctx, accountID, time.Now().UTC()); err != nil {
		j.logger.Error("revoke account tokens", slog.String("account_id", payload.AccountID), slog.Any("error", err))
		return err
	}
	j.logger.Info("revoked account tokens", slog.String("account_id", payload.AccountID), slog.String("reason", payload.Reason))
	return nil
}
