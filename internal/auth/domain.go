package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account represents an ERP user account.
type Account struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Superuser    bool
	Admin        bool
	CompanyID    uuid.UUID
	Suspended    bool
	LastAccessAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountView is the projection returned at the boundary. It never carries
// the password hash.
type AccountView struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Superuser    bool       `json:"superuser"`
	Admin        bool       `json:"admin"`
	CompanyID    uuid.UUID  `json:"empresaId"`
	Suspended    bool       `json:"cesado"`
	LastAccessAt *time.Time `json:"ultimoAcceso,omitempty"`
	CreatedAt    time.Time  `json:"creadoEn"`
}

// View builds the secret-free projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		ID:           a.ID,
		Username:     a.Username,
		Superuser:    a.Superuser,
		Admin:        a.Admin,
		CompanyID:    a.CompanyID,
		Suspended:    a.Suspended,
		LastAccessAt: a.LastAccessAt,
		CreatedAt:    a.CreatedAt,
	}
}

// RefreshTokenRecord is the persisted form of an issued refresh token.
// TokenHash holds the SHA-256 digest of the raw value; the raw value itself
// is only ever returned to the caller.
type RefreshTokenRecord struct {
	ID        uuid.UUID
	TokenHash string
	AccountID uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}
