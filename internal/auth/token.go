package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Claims is the access-token claim set. Subject carries the account id so
// downstream modules can authorize without a database round-trip.
type Claims struct {
	Username  string `json:"username"`
	Superuser bool   `json:"superuser"`
	Admin     bool   `json:"admin"`
	CompanyID string `json:"empresaId"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim back into an account identifier.
func (c *Claims) AccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse subject claim: %w", err)
	}
	return id, nil
}

// TokenIssuer creates and verifies signed access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer signing with HS256.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueAccess signs a short-lived token carrying the account's identity and
// role flags.
func (i *TokenIssuer) IssueAccess(acc *Account) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		Username:  acc.Username,
		Superuser: acc.Superuser,
		Admin:     acc.Admin,
		CompanyID: acc.CompanyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates a signed token. Bad signature, wrong
// algorithm, malformed structure and expiry all map to ErrUnauthorized.
func (i *TokenIssuer) VerifyAccess(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, shared.ErrUnauthorized
	}
	return claims, nil
}
