package content

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface this package needs. The default
// implementation prints to stdout; cmd/server injects glog-backed loggers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated identity. It is resolved
// fresh from the persistence gateway on every authenticated request and is
// read-only downstream.
type Identity interface {
	ID() string
	Email() string
	Nickname() string
	Role() string
	EmailVerified() bool
}

// IdentityProvider verifies credentials and resolves identities for login.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (*User, error)
	FindIdentityByEmail(ctx context.Context, email string) (*User, error)
}

// Config holds the auth options consumed by the token service and guards.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenTTL() string
	GetRefreshTokenTTL() string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }

func (defLogger) print(level, msg string, args ...any) {
	if len(args) > 0 {
		fmt.Printf("[%s] CONTENT %s %v\n", level, msg, args)
		return
	}
	fmt.Printf("[%s] CONTENT %s\n", level, msg)
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
