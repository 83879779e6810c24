package content

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the service's dependencies are reachable.
type HealthChecker func(ctx context.Context) error

// AppOptions wires the server's collaborators.
type AppOptions struct {
	Controller *Controller
	Guards     *Guards
	Classifier *Classifier
	Metrics    *Metrics
	Registry   *prometheus.Registry
	Health     HealthChecker
	Logger     Logger
}

// NewApp assembles the fiber application: middleware, error handling, and the
// full route table.
func NewApp(opts AppOptions) *fiber.App {
	logger := normalizeLogger(opts.Logger)

	app := fiber.New(fiber.Config{
		AppName:      "content-platform",
		ErrorHandler: opts.Classifier.ErrorHandler(),
	})

	app.Use(requestid.New())

	if opts.Metrics != nil {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()

			status := c.Response().StatusCode()
			if err != nil {
				status = opts.Classifier.Classify(err).Code
			}

			route := c.Route().Path
			opts.Metrics.HTTPRequest(c.Method(), route, status, time.Since(start))
			return err
		})
	}

	ctrl := opts.Controller
	guards := opts.Guards

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if opts.Health != nil {
			if err := opts.Health(c.UserContext()); err != nil {
				logger.Error("health check failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unhealthy",
				})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if opts.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	auth := app.Group("/auth")
	auth.Post("/register", ctrl.Register)
	auth.Post("/login", ctrl.Login)
	auth.Post("/refresh", ctrl.Refresh)
	auth.Get("/me", guards.Authenticate(), ctrl.Me)
	auth.Post("/verify-email", guards.Authenticate(), ctrl.RequestEmailVerification)
	auth.Post("/verify-email/confirm", ctrl.ConfirmEmailVerification)
	auth.Post("/password-reset", ctrl.RequestPasswordReset)
	auth.Post("/password-reset/confirm", ctrl.ConfirmPasswordReset)

	articles := app.Group("/articles")
	articles.Get("/", guards.OptionalAuthenticate(), ctrl.ListArticles)
	articles.Get("/:id", guards.OptionalAuthenticate(), ctrl.GetArticle)
	articles.Post("/",
		guards.Authenticate(),
		guards.RequirePermission(PermArticleWrite),
		ctrl.CreateArticle,
	)
	articles.Patch("/:id",
		guards.Authenticate(),
		guards.RequirePermission(PermArticleWrite),
		guards.RequireOwnership("id", ctrl.repo.Articles()),
		ctrl.UpdateArticle,
	)
	articles.Delete("/:id",
		guards.Authenticate(),
		guards.RequirePermission(PermArticleDelete),
		guards.RequireOwnership("id", ctrl.repo.Articles()),
		ctrl.DeleteArticle,
	)

	orders := app.Group("/orders", guards.Authenticate())
	orders.Post("/", guards.RequireEmailVerified(), ctrl.CreateOrder)
	orders.Get("/", ctrl.ListOrders)
	orders.Get("/:id", guards.RequireOwnership("id", ctrl.repo.Orders()), ctrl.GetOrder)
	orders.Post("/:id/pay", guards.RequireOwnership("id", ctrl.repo.Orders()), ctrl.PayOrder)

	return app
}
