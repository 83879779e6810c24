package content_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	content "github.com/goliatone/go-content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type recordingSink struct {
	mu     sync.Mutex
	events []content.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event content.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) byType(eventType content.ActivityEventType) []content.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []content.ActivityEvent
	for _, event := range r.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*content.User)(nil),
		(*content.Article)(nil),
		(*content.Order)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).WithForeignKeys().Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

type apiHarness struct {
	t      *testing.T
	app    *fiber.App
	repo   content.RepositoryManager
	tokens content.TokenService
	sink   *recordingSink
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	db := newTestDB(t)
	repo := content.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	tokens := content.NewTokenService(signingKey, "test-issuer")
	provider := content.NewUserProvider(repo.Users())
	sink := &recordingSink{}

	guards := content.NewGuards(tokens, repo.Users())
	classifier := content.NewClassifier()

	ctrl := content.NewController(repo, tokens, provider,
		content.WithActivitySink(sink),
		content.WithDebug(true),
	)

	app := content.NewApp(content.AppOptions{
		Controller: ctrl,
		Guards:     guards,
		Classifier: classifier,
	})

	return &apiHarness{
		t:      t,
		app:    app,
		repo:   repo,
		tokens: tokens,
		sink:   sink,
	}
}

type apiResponse struct {
	status  int
	success content.SuccessResponse
	failure content.ErrorResponse
	raw     []byte
}

func (h *apiHarness) request(method, path, token string, payload any) apiResponse {
	h.t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(h.t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)

	out := apiResponse{status: resp.StatusCode, raw: raw}
	if resp.StatusCode >= 400 {
		require.NoError(h.t, json.Unmarshal(raw, &out.failure), "body: %s", raw)
	} else {
		require.NoError(h.t, json.Unmarshal(raw, &out.success), "body: %s", raw)
	}
	return out
}

func (h *apiHarness) data(resp apiResponse) map[string]any {
	h.t.Helper()
	data, ok := resp.success.Data.(map[string]any)
	require.True(h.t, ok, "expected object data, got: %s", resp.raw)
	return data
}

func (h *apiHarness) register(email, password string) apiResponse {
	return h.request("POST", "/auth/register", "", map[string]any{
		"email":            email,
		"nickname":         "tester",
		"password":         password,
		"confirm_password": password,
	})
}

func (h *apiHarness) login(email, password string) apiResponse {
	return h.request("POST", "/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
}

func (h *apiHarness) loginToken(email, password string) string {
	h.t.Helper()

	resp := h.login(email, password)
	require.Equal(h.t, http.StatusOK, resp.status, "body: %s", resp.raw)

	tokens, ok := h.data(resp)["tokens"].(map[string]any)
	require.True(h.t, ok)
	access, ok := tokens["access_token"].(string)
	require.True(h.t, ok)
	return access
}

// seedUser creates an account directly, bypassing the API, so tests can mint
// managers and admins.
func (h *apiHarness) seedUser(email, password string, role content.Role, verified bool) *content.User {
	h.t.Helper()

	hash, err := content.HashPassword(password)
	require.NoError(h.t, err)

	user, err := h.repo.Users().Register(context.Background(), &content.User{
		Email:         email,
		Nickname:      "seeded",
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: verified,
	})
	require.NoError(h.t, err)
	return user
}

func TestAPI_RegisterAndLogin(t *testing.T) {
	h := newAPIHarness(t)

	t.Run("register then login then me", func(t *testing.T) {
		resp := h.register("alice@example.com", "sup3r-secret")
		require.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.raw)

		user, ok := h.data(resp)["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", user["email"])
		assert.Equal(t, string(content.RoleUser), user["role"])
		assert.NotContains(t, string(resp.raw), "password_hash")

		access := h.loginToken("alice@example.com", "sup3r-secret")

		me := h.request("GET", "/auth/me", access, nil)
		require.Equal(t, http.StatusOK, me.status)

		meUser, ok := h.data(me)["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", meUser["email"])

		registered := h.sink.byType(content.ActivityUserRegistered)
		require.Len(t, registered, 1)
		assert.True(t, registered[0].Success)
	})

	t.Run("duplicate email is a stable conflict", func(t *testing.T) {
		resp := h.register("alice@example.com", "another-password")
		assert.Equal(t, http.StatusConflict, resp.status)
		assert.Equal(t, content.TextCodeEmailAlreadyExists, resp.failure.Code)
	})

	t.Run("email case does not create a second account", func(t *testing.T) {
		resp := h.register("ALICE@example.com", "another-password")
		assert.Equal(t, http.StatusConflict, resp.status)
	})

	t.Run("short address without a confirmation registers", func(t *testing.T) {
		resp := h.request("POST", "/auth/register", "", map[string]any{
			"email":    "a@x.com",
			"nickname": "bob",
			"password": "Aa123456",
		})
		assert.Equal(t, http.StatusCreated, resp.status, "body: %s", resp.raw)
	})

	t.Run("mismatched confirmation is still rejected", func(t *testing.T) {
		resp := h.request("POST", "/auth/register", "", map[string]any{
			"email":            "mismatch@example.com",
			"nickname":         "tester",
			"password":         "sup3r-secret",
			"confirm_password": "different-secret",
		})
		assert.Equal(t, http.StatusBadRequest, resp.status)
		assert.Contains(t, resp.failure.Errors, "confirm_password")
	})

	t.Run("invalid payload returns the field map", func(t *testing.T) {
		resp := h.request("POST", "/auth/register", "", map[string]any{
			"email":            "not-an-email",
			"nickname":         "x",
			"password":         "short",
			"confirm_password": "different",
		})

		assert.Equal(t, http.StatusBadRequest, resp.status)
		assert.Equal(t, content.TextCodeValidationError, resp.failure.Code)
		assert.Contains(t, resp.failure.Errors, "email")
		assert.Contains(t, resp.failure.Errors, "password")
		assert.Contains(t, resp.failure.Errors, "confirm_password")
	})

	t.Run("wrong password is invalid credentials", func(t *testing.T) {
		resp := h.login("alice@example.com", "wrong-password")
		assert.Equal(t, http.StatusUnauthorized, resp.status)
		assert.Equal(t, content.TextCodeInvalidCredentials, resp.failure.Code)
	})
}

func TestAPI_LoginThrottling(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser("bob@example.com", "sup3r-secret", content.RoleUser, true)

	for i := 0; i < content.MaxLoginAttempts; i++ {
		resp := h.login("bob@example.com", "wrong-password")
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	}

	resp := h.login("bob@example.com", "sup3r-secret")
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, content.TextCodeTooManyAttempts, resp.failure.Code)

	failures := h.sink.byType(content.ActivityLoginFailure)
	assert.GreaterOrEqual(t, len(failures), content.MaxLoginAttempts)
	for _, event := range failures {
		assert.False(t, event.Success)
		assert.Equal(t, "bob@example.com", event.Actor.Email)
	}
}

func TestAPI_ExpiredToken(t *testing.T) {
	h := newAPIHarness(t)
	user := h.seedUser("carol@example.com", "sup3r-secret", content.RoleUser, true)

	stale, err := h.tokens.Issue(content.NewIdentityFromUser(user), content.TokenKindAccess,
		content.WithIssuedAt(time.Now().Add(-200*time.Hour)),
	)
	require.NoError(t, err)

	resp := h.request("GET", "/auth/me", stale, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, content.TextCodeAuthenticationFailed, resp.failure.Code)
}

func TestAPI_Refresh(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser("dave@example.com", "sup3r-secret", content.RoleUser, true)

	login := h.login("dave@example.com", "sup3r-secret")
	require.Equal(t, http.StatusOK, login.status)

	tokens := h.data(login)["tokens"].(map[string]any)
	refresh, ok := tokens["refresh_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, refresh)

	t.Run("refresh token mints a working access token", func(t *testing.T) {
		resp := h.request("POST", "/auth/refresh", "", map[string]any{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.raw)

		pair := h.data(resp)["tokens"].(map[string]any)
		access, ok := pair["access_token"].(string)
		require.True(t, ok)

		me := h.request("GET", "/auth/me", access, nil)
		assert.Equal(t, http.StatusOK, me.status)
	})

	t.Run("access token is refused by the refresh endpoint", func(t *testing.T) {
		access := h.loginToken("dave@example.com", "sup3r-secret")

		resp := h.request("POST", "/auth/refresh", "", map[string]any{
			"refresh_token": access,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	})
}

func TestAPI_EmailVerification(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.register("erin@example.com", "sup3r-secret")
	require.Equal(t, http.StatusCreated, resp.status)

	verifyToken, ok := h.data(resp)["verification_token"].(string)
	require.True(t, ok, "debug mode should expose the verification token")

	access := h.loginToken("erin@example.com", "sup3r-secret")

	t.Run("unverified account cannot order", func(t *testing.T) {
		order := h.request("POST", "/orders/", access, map[string]any{
			"article_id": "00000000-0000-0000-0000-000000000001",
		})
		assert.Equal(t, http.StatusForbidden, order.status)
		assert.Equal(t, content.TextCodeEmailNotVerified, order.failure.Code)
	})

	t.Run("confirm marks the account verified", func(t *testing.T) {
		confirm := h.request("POST", "/auth/verify-email/confirm", "", map[string]any{
			"token": verifyToken,
		})
		require.Equal(t, http.StatusOK, confirm.status, "body: %s", confirm.raw)

		me := h.request("GET", "/auth/me", access, nil)
		user := h.data(me)["user"].(map[string]any)
		assert.Equal(t, true, user["is_email_verified"])
	})

	t.Run("access token cannot confirm verification", func(t *testing.T) {
		confirm := h.request("POST", "/auth/verify-email/confirm", "", map[string]any{
			"token": access,
		})
		assert.Equal(t, http.StatusUnauthorized, confirm.status)
	})
}

func TestAPI_PasswordReset(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser("frank@example.com", "old-password-1", content.RoleUser, true)

	resp := h.request("POST", "/auth/password-reset", "", map[string]any{
		"email": "frank@example.com",
	})
	require.Equal(t, http.StatusOK, resp.status, "body: %s", resp.raw)

	resetToken, ok := h.data(resp)["reset_token"].(string)
	require.True(t, ok, "debug mode should expose the reset token")

	t.Run("unknown email gets the same neutral answer", func(t *testing.T) {
		neutral := h.request("POST", "/auth/password-reset", "", map[string]any{
			"email": "nobody@example.com",
		})
		assert.Equal(t, http.StatusAccepted, neutral.status)
	})

	t.Run("confirm replaces the password", func(t *testing.T) {
		confirm := h.request("POST", "/auth/password-reset/confirm", "", map[string]any{
			"token":            resetToken,
			"password":         "new-password-1",
			"confirm_password": "new-password-1",
		})
		require.Equal(t, http.StatusOK, confirm.status, "body: %s", confirm.raw)

		old := h.login("frank@example.com", "old-password-1")
		assert.Equal(t, http.StatusUnauthorized, old.status)

		fresh := h.login("frank@example.com", "new-password-1")
		assert.Equal(t, http.StatusOK, fresh.status)
	})
}

func TestAPI_Articles(t *testing.T) {
	h := newAPIHarness(t)

	h.seedUser("manager@example.com", "sup3r-secret", content.RoleContentManager, true)
	h.seedUser("reader@example.com", "sup3r-secret", content.RoleUser, true)
	h.seedUser("rival@example.com", "sup3r-secret", content.RoleContentManager, true)
	h.seedUser("root@example.com", "sup3r-secret", content.RoleAdmin, true)

	manager := h.loginToken("manager@example.com", "sup3r-secret")
	reader := h.loginToken("reader@example.com", "sup3r-secret")
	rival := h.loginToken("rival@example.com", "sup3r-secret")
	admin := h.loginToken("root@example.com", "sup3r-secret")

	var premiumID string

	t.Run("plain users cannot author articles", func(t *testing.T) {
		resp := h.request("POST", "/articles/", reader, map[string]any{
			"title": "Nope", "slug": "nope", "body": "nope",
		})
		assert.Equal(t, http.StatusForbidden, resp.status)
		assert.Equal(t, content.TextCodeInsufficientPermissions, resp.failure.Code)
	})

	t.Run("manager publishes free and premium articles", func(t *testing.T) {
		free := h.request("POST", "/articles/", manager, map[string]any{
			"title":        "Hello World",
			"slug":         "hello-world",
			"body":         "free for everyone",
			"is_published": true,
		})
		require.Equal(t, http.StatusCreated, free.status, "body: %s", free.raw)

		premium := h.request("POST", "/articles/", manager, map[string]any{
			"title":        "Deep Dive",
			"slug":         "deep-dive",
			"body":         "the secret premium body",
			"is_premium":   true,
			"price_cents":  500,
			"is_published": true,
		})
		require.Equal(t, http.StatusCreated, premium.status, "body: %s", premium.raw)

		article := h.data(premium)["article"].(map[string]any)
		premiumID = article["id"].(string)
		require.NotEmpty(t, premiumID)
	})

	t.Run("premium without a price is a business error", func(t *testing.T) {
		resp := h.request("POST", "/articles/", manager, map[string]any{
			"title": "Broken", "slug": "broken", "body": "x", "is_premium": true,
		})
		assert.Equal(t, http.StatusBadRequest, resp.status)
		assert.Equal(t, content.TextCodeBusinessError, resp.failure.Code)
	})

	t.Run("anonymous viewers get the premium body redacted", func(t *testing.T) {
		resp := h.request("GET", "/articles/"+premiumID, "", nil)
		require.Equal(t, http.StatusOK, resp.status)

		article := h.data(resp)["article"].(map[string]any)
		_, hasBody := article["body"]
		assert.False(t, hasBody, "premium body must be withheld, got: %s", resp.raw)
	})

	t.Run("the author sees the premium body", func(t *testing.T) {
		resp := h.request("GET", "/articles/"+premiumID, manager, nil)
		article := h.data(resp)["article"].(map[string]any)
		assert.Equal(t, "the secret premium body", article["body"])
	})

	t.Run("buying unlocks the premium body", func(t *testing.T) {
		order := h.request("POST", "/orders/", reader, map[string]any{
			"article_id": premiumID,
		})
		require.Equal(t, http.StatusCreated, order.status, "body: %s", order.raw)

		orderData := h.data(order)["order"].(map[string]any)
		orderID := orderData["id"].(string)
		assert.Equal(t, string(content.OrderStatusPending), orderData["status"])

		before := h.request("GET", "/articles/"+premiumID, reader, nil)
		articleBefore := h.data(before)["article"].(map[string]any)
		_, hasBody := articleBefore["body"]
		assert.False(t, hasBody, "unpaid order must not unlock the body")

		pay := h.request("POST", "/orders/"+orderID+"/pay", reader, nil)
		require.Equal(t, http.StatusOK, pay.status, "body: %s", pay.raw)

		paid := h.data(pay)["order"].(map[string]any)
		assert.Equal(t, string(content.OrderStatusPaid), paid["status"])

		after := h.request("GET", "/articles/"+premiumID, reader, nil)
		articleAfter := h.data(after)["article"].(map[string]any)
		assert.Equal(t, "the secret premium body", articleAfter["body"])

		paidEvents := h.sink.byType(content.ActivityOrderPaid)
		require.Len(t, paidEvents, 1)
		assert.True(t, paidEvents[0].Success)

		t.Run("paying twice is refused", func(t *testing.T) {
			again := h.request("POST", "/orders/"+orderID+"/pay", reader, nil)
			assert.Equal(t, http.StatusBadRequest, again.status)
		})

		t.Run("buying twice is a conflict", func(t *testing.T) {
			again := h.request("POST", "/orders/", reader, map[string]any{
				"article_id": premiumID,
			})
			assert.Equal(t, http.StatusConflict, again.status)
		})
	})

	t.Run("another manager cannot edit someone else's article", func(t *testing.T) {
		resp := h.request("PATCH", "/articles/"+premiumID, rival, map[string]any{
			"title": "Hijacked", "slug": "deep-dive", "body": "mine now",
		})
		assert.Equal(t, http.StatusForbidden, resp.status)
		assert.Equal(t, content.TextCodeResourceAccessDenied, resp.failure.Code)
	})

	t.Run("admins bypass ownership", func(t *testing.T) {
		resp := h.request("PATCH", "/articles/"+premiumID, admin, map[string]any{
			"title":        "Deep Dive (edited)",
			"slug":         "deep-dive",
			"body":         "the secret premium body",
			"is_premium":   true,
			"price_cents":  500,
			"is_published": true,
		})
		assert.Equal(t, http.StatusOK, resp.status, "body: %s", resp.raw)
	})

	t.Run("listing shows published articles to everyone", func(t *testing.T) {
		resp := h.request("GET", "/articles/", "", nil)
		require.Equal(t, http.StatusOK, resp.status)

		articles := h.data(resp)["articles"].([]any)
		assert.Len(t, articles, 2)
		assert.NotNil(t, resp.success.Meta)
	})

	t.Run("unknown article is 404", func(t *testing.T) {
		resp := h.request("GET", "/articles/"+uuidNil(), "", nil)
		assert.Equal(t, http.StatusNotFound, resp.status)
	})
}

func TestAPI_Orders_Ownership(t *testing.T) {
	h := newAPIHarness(t)

	h.seedUser("author@example.com", "sup3r-secret", content.RoleContentManager, true)
	h.seedUser("buyer@example.com", "sup3r-secret", content.RoleUser, true)
	h.seedUser("snoop@example.com", "sup3r-secret", content.RoleUser, true)

	author := h.loginToken("author@example.com", "sup3r-secret")
	buyer := h.loginToken("buyer@example.com", "sup3r-secret")
	snoop := h.loginToken("snoop@example.com", "sup3r-secret")

	created := h.request("POST", "/articles/", author, map[string]any{
		"title":        "Paid Post",
		"slug":         "paid-post",
		"body":         "premium",
		"is_premium":   true,
		"price_cents":  1000,
		"is_published": true,
	})
	require.Equal(t, http.StatusCreated, created.status)
	articleID := h.data(created)["article"].(map[string]any)["id"].(string)

	order := h.request("POST", "/orders/", buyer, map[string]any{"article_id": articleID})
	require.Equal(t, http.StatusCreated, order.status)
	orderID := h.data(order)["order"].(map[string]any)["id"].(string)

	t.Run("the buyer can read their order", func(t *testing.T) {
		resp := h.request("GET", "/orders/"+orderID, buyer, nil)
		assert.Equal(t, http.StatusOK, resp.status)
	})

	t.Run("a stranger cannot read it", func(t *testing.T) {
		resp := h.request("GET", "/orders/"+orderID, snoop, nil)
		assert.Equal(t, http.StatusForbidden, resp.status)
		assert.Equal(t, content.TextCodeResourceAccessDenied, resp.failure.Code)
	})

	t.Run("a stranger cannot pay it", func(t *testing.T) {
		resp := h.request("POST", "/orders/"+orderID+"/pay", snoop, nil)
		assert.Equal(t, http.StatusForbidden, resp.status)
	})

	t.Run("listing only shows own orders", func(t *testing.T) {
		resp := h.request("GET", "/orders/", snoop, nil)
		require.Equal(t, http.StatusOK, resp.status)

		data := h.data(resp)
		orders, _ := data["orders"].([]any)
		assert.Empty(t, orders)
	})

	t.Run("anonymous order access is unauthorized", func(t *testing.T) {
		resp := h.request("GET", "/orders/"+orderID, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.status)
	})

	t.Run("free articles cannot be ordered", func(t *testing.T) {
		free := h.request("POST", "/articles/", author, map[string]any{
			"title":        "Freebie",
			"slug":         "freebie",
			"body":         "gratis",
			"is_published": true,
		})
		require.Equal(t, http.StatusCreated, free.status)
		freeID := h.data(free)["article"].(map[string]any)["id"].(string)

		resp := h.request("POST", "/orders/", buyer, map[string]any{"article_id": freeID})
		assert.Equal(t, http.StatusBadRequest, resp.status)
		assert.Equal(t, content.TextCodeBusinessError, resp.failure.Code)
	})
}

func TestAPI_Healthz(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func uuidNil() string {
	return "00000000-0000-0000-0000-000000000000"
}
