package content

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultExpiringSoonThreshold is how close to expiry a token has to be for
// IsExpiringSoon to suggest a proactive refresh.
const DefaultExpiringSoonThreshold = 30 * time.Minute

// TokenService issues and verifies the platform's signed credentials.
type TokenService interface {
	Issue(identity Identity, kind TokenKind, opts ...IssueOption) (string, error)
	Verify(tokenString string, kind TokenKind) (*TokenClaims, error)
	DecodeUnsafe(tokenString string) *TokenClaims
	IsExpiringSoon(tokenString string, threshold time.Duration) bool
	TTL(kind TokenKind) time.Duration
}

// IssueOption customizes a single issuance.
type IssueOption func(*issueOptions)

type issueOptions struct {
	ttl      time.Duration
	issuedAt time.Time
}

// WithTTL overrides the kind's default expiration.
func WithTTL(ttl time.Duration) IssueOption {
	return func(o *issueOptions) {
		o.ttl = ttl
	}
}

// WithIssuedAt overrides the issuance time. Zero uses time.Now().
func WithIssuedAt(at time.Time) IssueOption {
	return func(o *issueOptions) {
		o.issuedAt = at
	}
}

// TokenServiceImpl implements TokenService over a single shared HS256 secret.
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     Logger
}

// TokenServiceOption customizes the service at construction.
type TokenServiceOption func(*TokenServiceImpl)

// WithAccessTokenTTL overrides the default access token lifetime.
func WithAccessTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if ttl > 0 {
			ts.accessTTL = ttl
		}
	}
}

// WithRefreshTokenTTL overrides the default refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if ttl > 0 {
			ts.refreshTTL = ttl
		}
	}
}

// WithTokenLogger sets the logger used for verification diagnostics.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService creates a TokenService. The access token default is
// unusually long (7 days); it is kept configurable rather than silently
// shortened, see config.Auth.AccessTokenTTLExpression.
func NewTokenService(signingKey []byte, issuer string, opts ...TokenServiceOption) TokenService {
	ts := &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  168 * time.Hour,
		refreshTTL: 720 * time.Hour,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// TTL returns the default lifetime for a token kind.
func (ts *TokenServiceImpl) TTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenKindAccess:
		return ts.accessTTL
	case TokenKindRefresh:
		return ts.refreshTTL
	case TokenKindEmailVerification:
		return 24 * time.Hour
	case TokenKindPasswordReset:
		return time.Hour
	default:
		return 0
	}
}

// Issue signs a token of the given kind for the identity. Pure function of
// secret, payload, and clock.
func (ts *TokenServiceImpl) Issue(identity Identity, kind TokenKind, opts ...IssueOption) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	if !kind.IsValid() {
		return "", goerrors.New("unknown token kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	var options issueOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	ttl := options.ttl
	if ttl == 0 {
		ttl = ts.TTL(kind)
	}

	issuedAt := options.issuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  jwt.ClaimStrings{kind.Audience()},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		UID:      identity.ID(),
		Email:    identity.Email(),
		UserRole: identity.Role(),
		Kind:     kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Verify parses and validates a token, enforcing signature, issuer, the
// kind's audience, and the embedded kind discriminator. Audience alone is not
// a sufficient purpose guard, hence the extra kind check.
func (ts *TokenServiceImpl) Verify(tokenString string, kind TokenKind) (*TokenClaims, error) {
	if !kind.IsValid() {
		return nil, goerrors.New("unknown token kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, jwt.WithIssuer(ts.issuer), jwt.WithAudience(kind.Audience()))

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenInvalid.Category, ErrTokenInvalid.Message).
			WithTextCode(ErrTokenInvalid.TextCode).
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Kind != kind {
		return nil, goerrors.New(ErrTokenInvalid.Message, ErrTokenInvalid.Category).
			WithTextCode(ErrTokenInvalid.TextCode).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"want": string(kind), "got": string(claims.Kind)})
	}

	return claims, nil
}

// DecodeUnsafe extracts claims without verifying the signature. Returns nil
// on malformed input. Never use the result for authorization decisions.
func (ts *TokenServiceImpl) DecodeUnsafe(tokenString string) *TokenClaims {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &TokenClaims{})
	if err != nil {
		return nil
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil
	}

	return claims
}

// IsExpiringSoon reports whether the token expires within the threshold. Any
// decode failure counts as expiring soon, failing safe toward refresh.
func (ts *TokenServiceImpl) IsExpiringSoon(tokenString string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultExpiringSoonThreshold
	}

	claims := ts.DecodeUnsafe(tokenString)
	if claims == nil || claims.RegisteredClaims.ExpiresAt == nil {
		return true
	}

	return time.Until(claims.Expires()) <= threshold
}
