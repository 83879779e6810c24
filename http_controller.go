package content

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// Controller serves the platform's JSON API. All error paths return errors
// for the classifier; no handler writes an error body itself.
type Controller struct {
	repo     RepositoryManager
	tokens   TokenService
	provider IdentityProvider
	sink     ActivitySink
	metrics  *Metrics
	logger   Logger
	debug    bool
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller)

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.logger = normalizeLogger(logger)
	}
}

// WithActivitySink sets the audit event sink.
func WithActivitySink(sink ActivitySink) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.sink = normalizeSink(sink)
	}
}

// WithControllerMetrics sets the metrics collector.
func WithControllerMetrics(m *Metrics) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.metrics = m
	}
}

// WithDebug makes single-use tokens visible in responses so flows can be
// exercised without a mail transport. Development only.
func WithDebug(debug bool) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.debug = debug
	}
}

// NewController builds the API controller.
func NewController(repo RepositoryManager, tokens TokenService, provider IdentityProvider, opts ...ControllerOption) *Controller {
	ctrl := &Controller{
		repo:     repo,
		tokens:   tokens,
		provider: provider,
		sink:     noopSink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ctrl)
		}
	}

	if ctrl.repo == nil {
		panic("missing RepositoryManager in controller")
	}
	if ctrl.tokens == nil {
		panic("missing TokenService in controller")
	}
	if ctrl.provider == nil {
		panic("missing IdentityProvider in controller")
	}

	return ctrl
}

// validPhoneNumber accepts E.164 style numbers. Empty values pass, pair with
// validation.Required when the field is mandatory.
func validPhoneNumber(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}

	parsed, err := phonenumbers.Parse(raw, "US")
	if err != nil {
		return goerrors.New("must be a valid phone number", goerrors.CategoryValidation)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return goerrors.New("must be a valid phone number", goerrors.CategoryValidation)
	}

	return nil
}

// validateStringEquals checks a confirmation value against its source. Empty
// values pass, pair with validation.Required when the field is mandatory.
func validateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if s != str {
			return goerrors.New("values must match", goerrors.CategoryValidation)
		}
		return nil
	}
}

// RegisterPayload is the account creation body.
type RegisterPayload struct {
	Email           string `json:"email"`
	Nickname        string `json:"nickname"`
	Phone           string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate runs the payload rules.
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.EmailFormat),
		validation.Field(&r.Nickname, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Phone, validation.By(validPhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.ConfirmPassword, validation.By(validateStringEquals(r.Password))),
	)
}

// Register creates a new account with the USER role.
func (ctrl *Controller) Register(c *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	ctx := c.UserContext()
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	if _, err := ctrl.repo.Users().GetByEmail(ctx, email); err == nil {
		return ErrEmailAlreadyExists
	} else if !repository.IsRecordNotFound(err) {
		return err
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return err
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	user, err := ctrl.repo.Users().Register(ctx, &User{
		ID:           id,
		Email:        email,
		Nickname:     payload.Nickname,
		Phone:        payload.Phone,
		PasswordHash: hash,
		Role:         RoleUser,
	})
	if err != nil {
		return err
	}

	ctrl.record(ctx, ActivityUserRegistered, ActorRef{ID: user.ID.String(), Email: user.Email}, true)

	pair, err := ctrl.issuePair(user)
	if err != nil {
		return err
	}

	data := fiber.Map{"user": user, "tokens": pair}

	verifyToken, err := ctrl.tokens.Issue(NewIdentityFromUser(user), TokenKindEmailVerification)
	if err != nil {
		ctrl.logger.Error("failed to issue verification token", "user_id", user.ID.String(), "error", err)
	} else if ctrl.debug {
		data["verification_token"] = verifyToken
	}

	return RespondCreated(c, data)
}

// LoginPayload is the credential body.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate runs the payload rules.
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

// TokenPair is the credential set returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login verifies credentials and returns a token pair.
func (ctrl *Controller) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	ctx := c.UserContext()
	actor := ActorRef{Email: strings.ToLower(strings.TrimSpace(payload.Email))}

	user, err := ctrl.provider.VerifyIdentity(ctx, payload.Email, payload.Password)
	if err != nil {
		outcome := "failure"
		if goerrors.Is(err, ErrTooManyLoginAttempts) {
			outcome = "throttled"
		}
		ctrl.metrics.LoginAttempt(outcome)
		ctrl.record(ctx, ActivityLoginFailure, actor, false)
		return err
	}

	pair, err := ctrl.issuePair(user)
	if err != nil {
		return err
	}

	ctrl.metrics.LoginAttempt("success")
	ctrl.record(ctx, ActivityLoginSuccess, ActorRef{ID: user.ID.String(), Email: user.Email}, true)

	return RespondOK(c, fiber.Map{
		"user":   user,
		"tokens": pair,
	})
}

func (ctrl *Controller) issuePair(user *User) (TokenPair, error) {
	identity := NewIdentityFromUser(user)

	access, err := ctrl.tokens.Issue(identity, TokenKindAccess)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := ctrl.tokens.Issue(identity, TokenKindRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(ctrl.tokens.TTL(TokenKindAccess).Seconds()),
	}, nil
}

// RefreshPayload carries the refresh credential.
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate runs the payload rules.
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is rotated only when it is close to expiry.
func (ctrl *Controller) Refresh(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	claims, err := ctrl.tokens.Verify(payload.RefreshToken, TokenKindRefresh)
	if err != nil {
		return err
	}

	user, err := ctrl.repo.Users().FindIdentityByID(c.UserContext(), claims.UserID())
	if err != nil {
		return ErrUserNotFound
	}

	identity := NewIdentityFromUser(user)

	access, err := ctrl.tokens.Issue(identity, TokenKindAccess)
	if err != nil {
		return err
	}

	pair := TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ctrl.tokens.TTL(TokenKindAccess).Seconds()),
	}

	if ctrl.tokens.IsExpiringSoon(payload.RefreshToken, 24*time.Hour) {
		refresh, err := ctrl.tokens.Issue(identity, TokenKindRefresh)
		if err != nil {
			return err
		}
		pair.RefreshToken = refresh
	}

	return RespondOK(c, fiber.Map{"tokens": pair})
}

// Me returns the authenticated account.
func (ctrl *Controller) Me(c *fiber.Ctx) error {
	user, ok := CurrentIdentity(c)
	if !ok {
		return ErrAuthenticationRequired
	}

	return RespondOK(c, fiber.Map{
		"user":        user,
		"permissions": PermissionsFor(user.Role),
	})
}

// RequestEmailVerification issues a fresh single-use verification token for
// the authenticated account.
func (ctrl *Controller) RequestEmailVerification(c *fiber.Ctx) error {
	user, ok := CurrentIdentity(c)
	if !ok {
		return ErrAuthenticationRequired
	}

	if user.EmailVerified {
		return RespondMessage(c, fiber.StatusOK, "email already verified")
	}

	token, err := ctrl.tokens.Issue(NewIdentityFromUser(user), TokenKindEmailVerification)
	if err != nil {
		return err
	}

	// TODO: deliver over the mail transport once one is wired.
	ctrl.logger.Info("email verification requested", "user_id", user.ID.String())

	if ctrl.debug {
		return RespondOK(c, fiber.Map{"verification_token": token})
	}

	return RespondMessage(c, fiber.StatusAccepted, "verification email sent")
}

// TokenPayload carries a single-use token.
type TokenPayload struct {
	Token string `json:"token"`
}

// Validate runs the payload rules.
func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// ConfirmEmailVerification redeems a verification token and marks the account
// verified.
func (ctrl *Controller) ConfirmEmailVerification(c *fiber.Ctx) error {
	payload := new(TokenPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	claims, err := ctrl.tokens.Verify(payload.Token, TokenKindEmailVerification)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return ErrTokenInvalid
	}

	ctx := c.UserContext()
	if err := ctrl.repo.Users().MarkEmailVerified(ctx, id); err != nil {
		return err
	}

	ctrl.record(ctx, ActivityEmailVerified, ActorRef{ID: claims.UserID(), Email: claims.Email}, true)

	return RespondMessage(c, fiber.StatusOK, "email verified")
}

// PasswordResetRequestPayload starts a reset flow.
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate runs the payload rules.
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

// RequestPasswordReset issues a reset token for the account, if one exists.
// The response is identical either way so the endpoint cannot be used to
// probe for accounts.
func (ctrl *Controller) RequestPasswordReset(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	ctx := c.UserContext()

	user, err := ctrl.provider.FindIdentityByEmail(ctx, payload.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return RespondMessage(c, fiber.StatusAccepted, "if the account exists, a reset email was sent")
		}
		return err
	}

	token, err := ctrl.tokens.Issue(NewIdentityFromUser(user), TokenKindPasswordReset)
	if err != nil {
		return err
	}

	ctrl.logger.Info("password reset requested", "user_id", user.ID.String())

	if ctrl.debug {
		return RespondOK(c, fiber.Map{"reset_token": token})
	}

	return RespondMessage(c, fiber.StatusAccepted, "if the account exists, a reset email was sent")
}

// PasswordResetConfirmPayload finishes a reset flow.
type PasswordResetConfirmPayload struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate runs the payload rules.
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(r.Password)),
		),
	)
}

// ConfirmPasswordReset redeems a reset token and replaces the password. The
// account's email is also marked verified, possession of the token proves
// mailbox access.
func (ctrl *Controller) ConfirmPasswordReset(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	claims, err := ctrl.tokens.Verify(payload.Token, TokenKindPasswordReset)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return ErrTokenInvalid
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if err := ctrl.repo.Users().ResetPassword(ctx, id, hash); err != nil {
		return err
	}

	ctrl.record(ctx, ActivityPasswordReset, ActorRef{ID: claims.UserID(), Email: claims.Email}, true)

	return RespondMessage(c, fiber.StatusOK, "password updated")
}

// ArticlePayload is the create/update body for articles.
type ArticlePayload struct {
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	Body       string `json:"body"`
	Premium    bool   `json:"is_premium"`
	PriceCents int64  `json:"price_cents"`
	Published  bool   `json:"is_published"`
}

// Validate runs the payload rules.
func (r ArticlePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Slug, validation.Required, validation.Length(1, 200), is.DNSName),
		validation.Field(&r.Body, validation.Required),
		validation.Field(&r.PriceCents, validation.Min(int64(0))),
	)
}

// CreateArticle creates an article authored by the caller.
func (ctrl *Controller) CreateArticle(c *fiber.Ctx) error {
	user, ok := CurrentIdentity(c)
	if !ok {
		return ErrAuthenticationRequired
	}

	payload := new(ArticlePayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	if payload.Premium && payload.PriceCents <= 0 {
		return NewBusinessError("premium articles require a price")
	}

	article, err := ctrl.repo.Articles().Create(c.UserContext(), &Article{
		ID:         uuid.New(),
		AuthorID:   user.ID,
		Title:      payload.Title,
		Slug:       strings.ToLower(strings.TrimSpace(payload.Slug)),
		Body:       payload.Body,
		Premium:    payload.Premium,
		PriceCents: payload.PriceCents,
		Published:  payload.Published,
	})
	if err != nil {
		return err
	}

	return RespondCreated(c, fiber.Map{"article": article})
}

// ListArticles returns a page of articles. Anonymous callers and plain users
// see published articles only; managers see everything.
func (ctrl *Controller) ListArticles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	filter := ArticleFilter{PublishedOnly: true}

	viewer, authed := CurrentIdentity(c)
	if authed && HasPermission(viewer.Role, PermArticleWrite) {
		filter.PublishedOnly = false
	}

	ctx := c.UserContext()
	records, total, err := ctrl.repo.Articles().ListPage(ctx, filter, page, perPage)
	if err != nil {
		return err
	}

	views := make([]*Article, 0, len(records))
	for _, article := range records {
		view, err := ctrl.articleView(ctx, article, viewer)
		if err != nil {
			return err
		}
		views = append(views, view)
	}

	return RespondList(c, fiber.Map{"articles": views}, NewPageMeta(page, perPage, total))
}

// GetArticle returns one article by id, with the premium body redacted for
// viewers who have not bought it.
func (ctrl *Controller) GetArticle(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx := c.UserContext()
	article, err := ctrl.repo.Articles().GetByID(ctx, id)
	if err != nil {
		return err
	}

	viewer, _ := CurrentIdentity(c)

	if !article.Published && !ctrl.canManage(viewer, article) {
		return ErrResourceAccessDenied
	}

	view, err := ctrl.articleView(ctx, article, viewer)
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.Map{"article": view})
}

// UpdateArticle updates an article. Ownership is enforced by middleware.
func (ctrl *Controller) UpdateArticle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return NewBusinessError("invalid article id")
	}

	payload := new(ArticlePayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	if payload.Premium && payload.PriceCents <= 0 {
		return NewBusinessError("premium articles require a price")
	}

	article, err := ctrl.repo.Articles().Update(c.UserContext(), &Article{
		ID:         id,
		Title:      payload.Title,
		Slug:       strings.ToLower(strings.TrimSpace(payload.Slug)),
		Body:       payload.Body,
		Premium:    payload.Premium,
		PriceCents: payload.PriceCents,
		Published:  payload.Published,
	})
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.Map{"article": article})
}

// DeleteArticle soft deletes an article. Ownership is enforced by middleware.
func (ctrl *Controller) DeleteArticle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return NewBusinessError("invalid article id")
	}

	if err := ctrl.repo.Articles().DeleteByID(c.UserContext(), id); err != nil {
		return err
	}

	return RespondMessage(c, fiber.StatusOK, "article deleted")
}

// OrderPayload creates a purchase for a premium article.
type OrderPayload struct {
	ArticleID string `json:"article_id"`
}

// Validate runs the payload rules.
func (r OrderPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ArticleID, validation.Required, is.UUID),
	)
}

// CreateOrder opens a pending purchase for a premium article.
func (ctrl *Controller) CreateOrder(c *fiber.Ctx) error {
	user, ok := CurrentIdentity(c)
	if !ok {
		return ErrAuthenticationRequired
	}

	payload := new(OrderPayload)
	if err := c.BodyParser(payload); err != nil {
		return err
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	ctx := c.UserContext()
	article, err := ctrl.repo.Articles().GetByID(ctx, payload.ArticleID)
	if err != nil {
		return err
	}

	if !article.Premium {
		return NewBusinessError("article is not premium content")
	}
	if !article.Published {
		return NewBusinessError("article is not available for purchase")
	}

	bought, err := ctrl.repo.Orders().HasPaidOrder(ctx, user.ID, article.ID)
	if err != nil {
		return err
	}
	if bought {
		return NewConflictError("article already purchased")
	}

	order, err := ctrl.repo.Orders().Create(ctx, &Order{
		ID:          uuid.New(),
		UserID:      user.ID,
		ArticleID:   article.ID,
		AmountCents: article.PriceCents,
		Status:      OrderStatusPending,
	})
	if err != nil {
		return err
	}

	return RespondCreated(c, fiber.Map{"order": order})
}

// ListOrders returns the caller's orders, or every order for callers with the
// order management permission when ?all=true.
func (ctrl *Controller) ListOrders(c *fiber.Ctx) error {
	user, ok := CurrentIdentity(c)
	if !ok {
		return ErrAuthenticationRequired
	}

	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 20)

	ctx := c.UserContext()

	var (
		records []*Order
		total   int
		err     error
	)

	if c.QueryBool("all") && HasPermission(user.Role, PermOrdersManage) {
		records, total, err = ctrl.repo.Orders().ListAll(ctx, page, perPage)
	} else {
		records, total, err = ctrl.repo.Orders().ListByUser(ctx, user.ID, page, perPage)
	}
	if err != nil {
		return err
	}

	return RespondList(c, fiber.Map{"orders": records}, NewPageMeta(page, perPage, total))
}

// GetOrder returns one order. Ownership is enforced by middleware.
func (ctrl *Controller) GetOrder(c *fiber.Ctx) error {
	order, err := ctrl.repo.Orders().GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.Map{"order": order})
}

// PayOrder settles a pending order. Ownership is enforced by middleware.
func (ctrl *Controller) PayOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return NewBusinessError("invalid order id")
	}

	ctx := c.UserContext()
	order, err := ctrl.repo.Orders().MarkPaid(ctx, id)
	if err != nil {
		return err
	}

	actor := ActorRef{ID: order.UserID.String()}
	event := newActivityEvent(ActivityOrderPaid, actor, true)
	event.Metadata = map[string]any{
		"order_id":     order.ID.String(),
		"article_id":   order.ArticleID.String(),
		"amount_cents": order.AmountCents,
	}
	ctrl.sink.Record(ctx, event)

	return RespondOK(c, fiber.Map{"order": order})
}

// articleView returns the article as the viewer is allowed to see it. The
// premium body is withheld unless the viewer authored it, manages content, or
// has a paid order for it.
func (ctrl *Controller) articleView(ctx context.Context, article *Article, viewer *User) (*Article, error) {
	if !article.Premium || ctrl.canManage(viewer, article) {
		return article, nil
	}

	if viewer != nil {
		bought, err := ctrl.repo.Orders().HasPaidOrder(ctx, viewer.ID, article.ID)
		if err != nil {
			return nil, err
		}
		if bought {
			return article, nil
		}
	}

	redacted := *article
	redacted.Body = ""
	return &redacted, nil
}

func (ctrl *Controller) canManage(viewer *User, article *Article) bool {
	if viewer == nil {
		return false
	}
	if viewer.ID == article.AuthorID {
		return true
	}
	return HasPermission(viewer.Role, PermArticleWrite)
}

func (ctrl *Controller) record(ctx context.Context, eventType ActivityEventType, actor ActorRef, success bool) {
	ctrl.sink.Record(ctx, newActivityEvent(eventType, actor, success))
}
