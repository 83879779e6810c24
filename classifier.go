package content

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	repository "github.com/goliatone/go-repository-bun"
)

// Classifier is the single boundary that turns any failure raised in the
// request chain into the stable error wire contract. No per-route error
// formatting exists anywhere else.
type Classifier struct {
	logger  Logger
	devMode bool
	metrics *Metrics
}

// ClassifierOption customizes the classifier.
type ClassifierOption func(*Classifier)

// WithClassifierLogger sets the logger used for server/client error logging.
func WithClassifierLogger(logger Logger) ClassifierOption {
	return func(cl *Classifier) {
		cl.logger = normalizeLogger(logger)
	}
}

// WithDevMode exposes stack traces and original error text on 5xx responses.
// Never enable outside development.
func WithDevMode(dev bool) ClassifierOption {
	return func(cl *Classifier) {
		cl.devMode = dev
	}
}

// WithClassifierMetrics counts classified errors by stable code.
func WithClassifierMetrics(m *Metrics) ClassifierOption {
	return func(cl *Classifier) {
		cl.metrics = m
	}
}

// NewClassifier builds an error classifier.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	cl := &Classifier{
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl
}

// Classify is a total function from any failure to a rich error carrying an
// HTTP status, a stable code, and a client-safe message. First match wins.
func (cl *Classifier) Classify(err error) *goerrors.Error {
	if err == nil {
		return goerrors.New("no error", goerrors.CategoryInternal).
			WithTextCode(TextCodeInternalError).
			WithCode(goerrors.CodeInternal)
	}

	// Persistence gateway failures come before the rich pass-through so
	// repository text codes never reach the wire. Most specific first.
	if repository.IsRecordNotFound(err) || goerrors.Is(err, sql.ErrNoRows) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "record not found").
			WithTextCode(TextCodeNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	if field, ok := uniqueViolation(err); ok {
		message := "duplicate value violates a unique constraint"
		metadata := map[string]any{}
		if field != "" {
			message = fmt.Sprintf("duplicate value for field %s", field)
			metadata["field"] = field
		}
		return goerrors.Wrap(err, goerrors.CategoryConflict, message).
			WithTextCode(TextCodeConflict).
			WithCode(goerrors.CodeConflict).
			WithMetadata(metadata)
	}

	if isForeignKeyViolation(err) {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "referenced record does not exist").
			WithTextCode(TextCodeBusinessError).
			WithCode(goerrors.CodeBadRequest)
	}

	if isSchemaShapeError(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "database schema error").
			WithTextCode(TextCodeDatabaseError).
			WithCode(goerrors.CodeInternal)
	}

	// Domain errors carry their own status and code.
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	// Structural validation failures carry a field → messages map.
	var verrs validation.Errors
	if goerrors.As(err, &verrs) {
		return goerrors.New("validation failed", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidationError).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": fieldErrors(verrs)})
	}

	// Token failures that escaped the auth guards.
	if goerrors.Is(err, jwt.ErrTokenExpired) {
		return goerrors.Wrap(err, ErrTokenExpired.Category, ErrTokenExpired.Message).
			WithTextCode(TextCodeAuthenticationError).
			WithCode(goerrors.CodeUnauthorized)
	}

	if isTokenError(err) {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid authentication token").
			WithTextCode(TextCodeAuthenticationError).
			WithCode(goerrors.CodeUnauthorized)
	}

	// Malformed request bodies.
	if isBodyParseError(err) {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed request body").
			WithTextCode(TextCodeValidationError).
			WithCode(goerrors.CodeBadRequest)
	}

	// Framework-level errors (unknown route, method not allowed, ...).
	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) && fiberErr.Code < 500 {
		textCode := TextCodeBusinessError
		if fiberErr.Code == fiber.StatusNotFound {
			textCode = TextCodeNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryBadInput, fiberErr.Message).
			WithTextCode(textCode).
			WithCode(fiberErr.Code)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "internal server error").
		WithTextCode(TextCodeInternalError).
		WithCode(goerrors.CodeInternal)
}

// ErrorHandler returns the fiber error handler that renders the normalized
// error shape, echoes the request correlation id, and logs 5xx failures with
// full context.
func (cl *Classifier) ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		rich := cl.Classify(err)

		status := rich.Code
		if status == 0 {
			status = statusFromCategory(rich.Category)
		}

		code := rich.TextCode
		if code == "" {
			code = TextCodeInternalError
		}

		if cl.metrics != nil {
			cl.metrics.ErrorClassified(code)
		}

		requestID := requestIDFrom(c)

		if status >= fiber.StatusInternalServerError {
			cl.logger.Error("request failed",
				"error", err,
				"code", code,
				"status", status,
				"method", c.Method(),
				"path", c.Path(),
				"request_id", requestID,
				"metadata", print.MaybePrettyJSON(rich.Metadata),
			)
		} else {
			cl.logger.Debug("request rejected",
				"code", code,
				"status", status,
				"method", c.Method(),
				"path", c.Path(),
				"request_id", requestID,
			)
		}

		body := ErrorResponse{
			Success:   false,
			Message:   rich.Message,
			Code:      code,
			Errors:    fieldErrorsFromMetadata(rich.Metadata),
			RequestID: requestID,
		}

		if status >= fiber.StatusInternalServerError {
			if cl.devMode {
				body.Stack = string(debug.Stack())
				body.OriginalError = err.Error()
			} else {
				body.Message = "An unexpected error occurred"
			}
		}

		return c.Status(status).JSON(body)
	}
}

func requestIDFrom(c *fiber.Ctx) string {
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func fieldErrors(verrs validation.Errors) map[string][]string {
	fields := make(map[string][]string, len(verrs))

	keys := make([]string, 0, len(verrs))
	for key := range verrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ferr := verrs[key]
		if ferr == nil {
			continue
		}
		if nested, ok := ferr.(validation.Errors); ok {
			for nkey, nmsgs := range fieldErrors(nested) {
				fields[key+"."+nkey] = nmsgs
			}
			continue
		}
		fields[key] = append(fields[key], ferr.Error())
	}

	return fields
}

func fieldErrorsFromMetadata(metadata map[string]any) map[string][]string {
	if metadata == nil {
		return nil
	}
	fields, ok := metadata["fields"].(map[string][]string)
	if !ok {
		return nil
	}
	return fields
}

func uniqueViolation(err error) (field string, ok bool) {
	msg := err.Error()

	// sqlite: UNIQUE constraint failed: users.email
	if idx := strings.Index(msg, "UNIQUE constraint failed:"); idx >= 0 {
		rest := strings.TrimSpace(msg[idx+len("UNIQUE constraint failed:"):])
		if target := strings.Split(rest, ",")[0]; target != "" {
			if dot := strings.LastIndex(target, "."); dot >= 0 {
				return strings.TrimSpace(target[dot+1:]), true
			}
		}
		return "", true
	}

	// postgres: duplicate key value violates unique constraint "users_email_key"
	if strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505") {
		return constraintField(msg), true
	}

	return "", false
}

// constraintField extracts the column segment from a <table>_<column>_key
// style constraint name. Best effort only.
func constraintField(msg string) string {
	start := strings.Index(msg, `constraint "`)
	if start < 0 {
		return ""
	}
	rest := msg[start+len(`constraint "`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}

	name := rest[:end]
	name = strings.TrimSuffix(name, "_key")
	name = strings.TrimSuffix(name, "_idx")
	if under := strings.Index(name, "_"); under >= 0 {
		return name[under+1:]
	}
	return ""
}

func isForeignKeyViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "SQLSTATE 23503")
}

func isSchemaShapeError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") ||
		strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "column") && strings.Contains(msg, "does not exist")
}

func isTokenError(err error) bool {
	return goerrors.Is(err, jwt.ErrTokenMalformed) ||
		goerrors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		goerrors.Is(err, jwt.ErrTokenUnverifiable) ||
		goerrors.Is(err, jwt.ErrTokenInvalidAudience) ||
		goerrors.Is(err, jwt.ErrTokenInvalidIssuer) ||
		goerrors.Is(err, jwt.ErrTokenInvalidClaims)
}

func isBodyParseError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if goerrors.As(err, &syntaxErr) || goerrors.As(err, &typeErr) {
		return true
	}

	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		return fiberErr.Code == fiber.StatusUnprocessableEntity
	}

	return strings.Contains(err.Error(), "unexpected end of JSON input")
}
