package content

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var identityCtxKey = &contextKey{"identity"}

// identityLocalsKey is where guards park the resolved user on the fiber
// request.
const identityLocalsKey = "content_identity"

type contextKey struct {
	name string
}

// WithIdentityContext sets the resolved user in the given context.
func WithIdentityContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, identityCtxKey, user)
}

// IdentityFromContext finds the resolved user in a standard context.
func IdentityFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*User)
	return raw, ok
}

// CurrentIdentity returns the user attached to the request by Authenticate
// or OptionalAuthenticate, if any.
func CurrentIdentity(c *fiber.Ctx) (*User, bool) {
	raw, ok := c.Locals(identityLocalsKey).(*User)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

func attachIdentity(c *fiber.Ctx, user *User) {
	c.Locals(identityLocalsKey, user)
	c.SetUserContext(WithIdentityContext(c.UserContext(), user))
}
