package content

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// UserGateway resolves a token subject into a live account. Guards load the
// identity fresh on every request so role and verification changes take
// effect immediately.
type UserGateway interface {
	FindIdentityByID(ctx context.Context, id string) (*User, error)
}

// OwnerResolver answers who owns a resource, addressed by its route id.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, resourceID string) (string, error)
}

// OwnerResolverFunc adapts a function to the OwnerResolver interface.
type OwnerResolverFunc func(ctx context.Context, resourceID string) (string, error)

func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, resourceID string) (string, error) {
	return f(ctx, resourceID)
}

// Guards bundles the request middleware that gate protected routes.
type Guards struct {
	tokens  TokenService
	users   UserGateway
	logger  Logger
	metrics *Metrics
}

// GuardsOption customizes the middleware set.
type GuardsOption func(*Guards)

// WithGuardsLogger sets the logger used by the guards.
func WithGuardsLogger(logger Logger) GuardsOption {
	return func(g *Guards) {
		g.logger = normalizeLogger(logger)
	}
}

// WithGuardsMetrics counts guard rejections.
func WithGuardsMetrics(m *Metrics) GuardsOption {
	return func(g *Guards) {
		g.metrics = m
	}
}

// NewGuards builds the middleware set over a token service and a user
// gateway.
func NewGuards(tokens TokenService, users UserGateway, opts ...GuardsOption) *Guards {
	g := &Guards{
		tokens: tokens,
		users:  users,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Authenticate requires a valid bearer access token and a live account behind
// it. On success the user is attached to the request for downstream guards
// and handlers.
func (g *Guards) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := g.resolveBearer(c, true)
		if err != nil {
			return err
		}
		attachIdentity(c, user)
		return c.Next()
	}
}

// OptionalAuthenticate attaches an identity when a valid token is presented
// and lets the request through anonymously otherwise. It never rejects.
func (g *Guards) OptionalAuthenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}

		user, err := g.resolveBearer(c, false)
		if err != nil {
			g.logger.Warn("optional authentication failed, continuing anonymously",
				"path", c.Path(),
				"error", err,
			)
			return c.Next()
		}

		attachIdentity(c, user)
		return c.Next()
	}
}

// RequirePermission rejects identities whose role lacks the permission atom.
// Run after Authenticate.
func (g *Guards) RequirePermission(permission Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentIdentity(c)
		if !ok {
			return ErrAuthenticationRequired
		}

		if !HasPermission(user.Role, permission) {
			g.reject(TextCodeInsufficientPermissions)
			g.logger.Debug("permission denied",
				"user_id", user.ID.String(),
				"role", string(user.Role),
				"permission", string(permission),
				"path", c.Path(),
			)
			return goerrors.New(ErrInsufficientPermissions.Message, goerrors.CategoryAuthz).
				WithTextCode(TextCodeInsufficientPermissions).
				WithCode(goerrors.CodeForbidden).
				WithMetadata(map[string]any{"permission": string(permission)})
		}

		return c.Next()
	}
}

// RequireRole rejects identities whose role is not in the accepted set. Run
// after Authenticate.
func (g *Guards) RequireRole(roles ...Role) fiber.Handler {
	accepted := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		accepted[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := CurrentIdentity(c)
		if !ok {
			return ErrAuthenticationRequired
		}

		if _, ok := accepted[user.Role]; !ok {
			g.reject(TextCodeInsufficientRole)
			return ErrInsufficientRole
		}

		return c.Next()
	}
}

// RequireEmailVerified rejects identities that have not confirmed their email
// address. Run after Authenticate.
func (g *Guards) RequireEmailVerified() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentIdentity(c)
		if !ok {
			return ErrAuthenticationRequired
		}

		if !user.EmailVerified {
			g.reject(TextCodeEmailNotVerified)
			return ErrEmailNotVerified
		}

		return c.Next()
	}
}

// RequireOwnership rejects identities that do not own the resource addressed
// by the `param` route parameter. Admins bypass the ownership check but still
// need a valid session. A missing resource reads as a denial so the guard
// never reveals whether the resource exists; other resolver failures surface
// as internal errors rather than a misleading denial.
func (g *Guards) RequireOwnership(param string, resolver OwnerResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentIdentity(c)
		if !ok {
			return ErrAuthenticationRequired
		}

		if user.Role == RoleAdmin {
			return c.Next()
		}

		resourceID := c.Params(param)
		if resourceID == "" {
			return NewBusinessError("missing resource identifier")
		}

		ownerID, err := resolver.ResolveOwner(c.UserContext(), resourceID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				g.reject(TextCodeResourceAccessDenied)
				return ErrResourceAccessDenied
			}
			g.logger.Error("ownership resolution failed",
				"resource_id", resourceID,
				"path", c.Path(),
				"error", err,
			)
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not resolve resource owner").
				WithTextCode(TextCodeInternalError).
				WithCode(goerrors.CodeInternal)
		}

		if ownerID != user.ID.String() {
			g.reject(TextCodeResourceAccessDenied)
			return ErrResourceAccessDenied
		}

		return c.Next()
	}
}

// resolveBearer authenticates the request's bearer token. Rejections are
// counted only when `record` is set, the optional path proceeds anonymously
// and must not skew the rejection counter.
func (g *Guards) resolveBearer(c *fiber.Ctx, record bool) (*User, error) {
	token := bearerToken(c)
	if token == "" {
		if record {
			g.reject(TextCodeMissingToken)
		}
		return nil, ErrMissingToken
	}

	claims, err := g.tokens.Verify(token, TokenKindAccess)
	if err != nil {
		if record {
			g.reject(TextCodeAuthenticationFailed)
		}
		g.logger.Debug("access token rejected", "path", c.Path(), "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, ErrAuthenticationFailed.Message).
			WithTextCode(TextCodeAuthenticationFailed).
			WithCode(goerrors.CodeUnauthorized)
	}

	user, err := g.users.FindIdentityByID(c.UserContext(), claims.UserID())
	if err != nil || user == nil {
		if record {
			g.reject(TextCodeUserNotFound)
		}
		return nil, ErrUserNotFound
	}

	return user, nil
}

// reject counts a guard rejection by stable code.
func (g *Guards) reject(code string) {
	if g.metrics != nil {
		g.metrics.GuardRejected(code)
	}
}

// bearerToken extracts the credential from the Authorization header. Any
// other scheme reads as no token at all.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)

	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}
