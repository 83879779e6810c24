package content

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates what a token may be used for. Every kind maps to
// its own audience, and the kind is additionally embedded in the payload so a
// token minted for one purpose can never be replayed for another.
type TokenKind string

const (
	TokenKindAccess            TokenKind = "access"
	TokenKindRefresh           TokenKind = "refresh"
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
)

// Audience returns the audience claim value reserved for this kind. Unknown
// kinds have no audience and will never verify.
func (k TokenKind) Audience() string {
	switch k {
	case TokenKindAccess:
		return "content:access"
	case TokenKindRefresh:
		return "content:refresh"
	case TokenKindEmailVerification:
		return "content:verify-email"
	case TokenKindPasswordReset:
		return "content:password-reset"
	default:
		return ""
	}
}

// IsValid reports whether the kind is one of the defined token kinds.
func (k TokenKind) IsValid() bool {
	return k.Audience() != ""
}

// TokenClaims is the payload carried by every token this platform issues.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID      string    `json:"uid,omitempty"`
	Email    string    `json:"email,omitempty"`
	UserRole string    `json:"role,omitempty"`
	Kind     TokenKind `json:"tkn,omitempty"`
}

// UserID returns the subject identity id.
func (c *TokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// Role returns the global role carried by the token.
func (c *TokenClaims) Role() Role {
	return Role(c.UserRole)
}

// Expires returns the expiration time, zero if absent.
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued-at time, zero if absent.
func (c *TokenClaims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
