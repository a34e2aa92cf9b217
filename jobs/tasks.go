package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeTokens deletes refresh tokens past their retention window.
	TaskPurgeTokens = "auth:purge_tokens"
	// TaskRevokeAccount revokes every refresh token of one account.
	TaskRevokeAccount = "auth:revoke_account"
)

// RevokeAccountPayload identifies the account whose tokens must be revoked.
type RevokeAccountPayload struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// NewPurgeTokensTask constructs the periodic purge task.
func NewPurgeTokensTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeTokens, nil)
}

// NewRevokeAccountTask constructs a revoke-all task for one account.
func NewRevokeAccountTask(payload RevokeAccountPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRevokeAccount, data), nil
}
