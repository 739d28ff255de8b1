package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Identity is a single end user; call authorization (caller vs. callee) is
// enforced server-side per room, never encoded in the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	TokenType   TokenType `json:"token_type"`
}
