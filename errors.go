package content

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Stable machine codes. These are part of the wire contract: clients branch
// on them, so they must not change across versions.
const (
	TextCodeAuthenticationError     = "AUTHENTICATION_ERROR"
	TextCodeAuthorizationError      = "AUTHORIZATION_ERROR"
	TextCodeValidationError         = "VALIDATION_ERROR"
	TextCodeNotFound                = "NOT_FOUND"
	TextCodeConflict                = "CONFLICT"
	TextCodeBusinessError           = "BUSINESS_ERROR"
	TextCodeRateLimitError          = "RATE_LIMIT_ERROR"
	TextCodeDatabaseError           = "DATABASE_ERROR"
	TextCodeInternalError           = "INTERNAL_ERROR"
	TextCodeMissingToken            = "MISSING_TOKEN"
	TextCodeAuthenticationFailed    = "AUTHENTICATION_FAILED"
	TextCodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	TextCodeUserNotFound            = "USER_NOT_FOUND"
	TextCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	TextCodeInsufficientRole        = "INSUFFICIENT_ROLE"
	TextCodeEmailNotVerified        = "EMAIL_NOT_VERIFIED"
	TextCodeResourceAccessDenied    = "RESOURCE_ACCESS_DENIED"
	TextCodeEmailAlreadyExists      = "EMAIL_ALREADY_EXISTS"
	TextCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts         = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenInvalid            = "TOKEN_INVALID"
	TextCodeEmptyPassword           = "EMPTY_PASSWORD"
)

// ErrMissingToken is returned when a mandatory bearer credential is absent.
var ErrMissingToken = goerrors.New("authentication token is required", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthenticationFailed is returned when a presented access token does not
// verify, for whatever reason. The cause is kept server-side.
var ErrAuthenticationFailed = goerrors.New("authentication failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrAuthenticationRequired is returned by guards that need an identity when
// none was attached to the request.
var ErrAuthenticationRequired = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound is returned when a verified token's subject no longer
// resolves to an account.
var ErrUserNotFound = goerrors.New("user no longer exists", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrInsufficientPermissions is returned when the identity's role lacks a
// required permission atom.
var ErrInsufficientPermissions = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientPermissions).
	WithCode(goerrors.CodeForbidden)

// ErrInsufficientRole is returned when the identity's role is not in the
// accepted set.
var ErrInsufficientRole = goerrors.New("insufficient role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRole).
	WithCode(goerrors.CodeForbidden)

// ErrEmailNotVerified is returned when an operation requires a verified
// email address.
var ErrEmailNotVerified = goerrors.New("email address not verified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeForbidden)

// ErrResourceAccessDenied is returned when an ownership check fails or the
// resource does not resolve.
var ErrResourceAccessDenied = goerrors.New("you do not have access to this resource", goerrors.CategoryAuthz).
	WithTextCode(TextCodeResourceAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrTokenExpired is returned when a token verifies but its expiry is in the
// past.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned for bad signatures, malformed tokens, and
// issuer/audience/kind mismatches.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is returned for a wrong password or an unknown
// account; the two cases are deliberately indistinguishable.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when the login attempt window is
// exhausted.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

// ErrEmailAlreadyExists is returned when registering with an email that is
// already taken.
var ErrEmailAlreadyExists = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailAlreadyExists).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString is the error for empty passwords handed to the hasher.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// NewBusinessError builds a 400 domain-rule violation with a stable code.
func NewBusinessError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeBusinessError).
		WithCode(goerrors.CodeBadRequest)
}

// NewConflictError builds a 409 conflict, optionally naming the offending
// field in the message.
func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithTextCode(TextCodeConflict).
		WithCode(goerrors.CodeConflict)
}
