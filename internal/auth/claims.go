package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the only supported JWT claims shape.
// WorkerID and OrganizationID are required on every token; they are the
// identity tracking reports under.
type Claims struct {
	jwt.RegisteredClaims

	WorkerID       string    `json:"worker_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	TokenType      TokenType `json:"token_type"`
}
