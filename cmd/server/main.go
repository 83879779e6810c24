package main

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	gconfig "github.com/goliatone/go-config/config"
	content "github.com/goliatone/go-content"
	"github.com/goliatone/go-content/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("content"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(config.Default()).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		lgr.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	appConfig := cfg.Raw()

	bunDB, err := setupPersistence(ctx, appConfig, lgr)
	if err != nil {
		lgr.Error("failed to initialize persistence", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := content.NewMetrics(registry)

	repo := content.NewRepositoryManager(bunDB)
	repo.MustValidate()

	tokens := content.NewTokenService(
		[]byte(appConfig.GetSigningKey()),
		appConfig.GetIssuer(),
		content.WithAccessTokenTTL(appConfig.AccessTokenTTLDuration()),
		content.WithRefreshTokenTTL(appConfig.RefreshTokenTTLDuration()),
		content.WithTokenLogger(lgr.GetLogger("tokens")),
	)

	provider := content.NewUserProvider(repo.Users()).
		WithLogger(lgr.GetLogger("provider"))

	sink := content.NewLoggerActivitySink(lgr.GetLogger("activity"))

	guards := content.NewGuards(tokens, repo.Users(),
		content.WithGuardsLogger(lgr.GetLogger("guards")),
		content.WithGuardsMetrics(metrics),
	)

	classifier := content.NewClassifier(
		content.WithClassifierLogger(lgr.GetLogger("errors")),
		content.WithDevMode(appConfig.IsDevelopment()),
		content.WithClassifierMetrics(metrics),
	)

	ctrl := content.NewController(repo, tokens, provider,
		content.WithControllerLogger(lgr.GetLogger("api")),
		content.WithActivitySink(sink),
		content.WithControllerMetrics(metrics),
		content.WithDebug(appConfig.IsDevelopment()),
	)

	app := content.NewApp(content.AppOptions{
		Controller: ctrl,
		Guards:     guards,
		Classifier: classifier,
		Metrics:    metrics,
		Registry:   registry,
		Logger:     lgr.GetLogger("server"),
		Health: func(ctx context.Context) error {
			return bunDB.PingContext(ctx)
		},
	})

	go func() {
		if err := app.Listen(appConfig.Server.Addr); err != nil {
			lgr.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	lgr.Info("server started", "addr", appConfig.Server.Addr)

	waitExitSignal()

	lgr.Info("shutting down")
	if err := app.ShutdownWithTimeout(appConfig.ShutdownTimeoutDuration()); err != nil {
		lgr.Error("shutdown error", "error", err)
	}

	if err := bunDB.Close(); err != nil {
		lgr.Error("failed to close database", "error", err)
	}
}

func setupPersistence(ctx context.Context, appConfig *config.AppConfig, lgr *glog.BaseLogger) (*bun.DB, error) {
	db, err := sql.Open(sqliteshim.ShimName, appConfig.Persistence.GetServer())
	if err != nil {
		return nil, err
	}

	persistence.RegisterModel((*content.User)(nil))
	persistence.RegisterModel((*content.Article)(nil))
	persistence.RegisterModel((*content.Order)(nil))

	client, err := persistence.New(appConfig.Persistence, db, sqlitedialect.New())
	if err != nil {
		return nil, err
	}

	client.SetLogger(lgr.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(content.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return nil, err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return nil, err
	}

	if err := client.Migrate(ctx); err != nil {
		return nil, err
	}

	return client.DB(), nil
}

func waitExitSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
}
