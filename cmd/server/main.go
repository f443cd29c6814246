package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	auth "github.com/goliatone/go-sessionauth"
	"github.com/goliatone/go-sessionauth/graph"
	"github.com/goliatone/go-sessionauth/passkey"
	"github.com/goliatone/go-sessionauth/social"
	"github.com/goliatone/go-sessionauth/social/providers/github"
	"github.com/goliatone/go-sessionauth/social/providers/google"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := auth.LoadSettings()
	if err != nil {
		return err
	}

	zl, err := newZap(settings)
	if err != nil {
		return err
	}
	defer zl.Sync()

	logger := auth.NewZapLogger(zl)

	db, err := auth.OpenDatabase(settings.DatabaseDriver, settings.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := auth.Migrate(ctx, db); err != nil {
		return err
	}

	var mailer auth.Mailer = auth.NewSMTPMailer(settings)
	if settings.IsDevelopment() && settings.SMTPUser == "" {
		mailer = &auth.LogMailer{Logger: logger}
	}

	notifier, err := auth.NewNotifier(mailer)
	if err != nil {
		return err
	}
	notifier.WithLogger(logger)

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	sessions := auth.NewSessionManager(repo.Store(), settings).WithLogger(logger)

	activity := auth.LogActivitySink{Logger: logger}

	controller := auth.NewAuthController(repo, sessions, notifier, settings).
		WithLogger(logger).
		WithActivitySink(activity).
		UseHashid(settings.SignupHashid)

	socialAuth, err := social.NewSocialAuthenticator(repo,
		social.DefaultSocialAuthConfig(settings.GetSecret()),
		append(socialProviders(settings, logger), social.WithLogger(logger))...,
	)
	if err != nil {
		return err
	}

	passkeyCfg := passkey.LoadConfigFromEnv()
	var rp passkey.RelyingParty
	if webAuthn, err := passkey.NewWebAuthn(passkeyCfg); err != nil {
		auth.LogError(logger, "passkeys disabled", err)
	} else {
		rp = webAuthn
	}

	resolver := graph.NewResolver(repo, sessions, controller.Authenticator(), controller.Registrar()).
		WithLogger(logger).
		WithActivitySink(activity)
	gql, err := graph.NewHandler(resolver)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               auth.AppName,
		DisableStartupMessage: !settings.IsDevelopment(),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(settings.GetTrustedOrigins(), ","),
		AllowCredentials: true,
	}))

	api := app.Group("/api/auth", auth.TrustedOrigins(settings))
	controller.Register(api)
	social.NewHTTPController(socialAuth, sessions, settings).WithLogger(logger).Register(api)
	passkey.NewHTTPController(repo, sessions, rp, passkeyCfg).WithLogger(logger).Register(api)

	auth.NewBridge(sessions, settings).WithLogger(logger).WithActivitySink(activity).Register(app)
	gql.Use(auth.TrustedOrigins(settings)).Register(app)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", settings.HTTPAddr, "env", settings.AppEnv)
		errCh <- app.Listen(settings.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-waitExitSignal():
		logger.Info("shutting down", "signal", sig.String())
	}

	return app.ShutdownWithTimeout(shutdownTimeout)
}

func newZap(settings *auth.Settings) (*zap.Logger, error) {
	if settings.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// socialProviders enables a provider only when both its client id and
// secret are configured
func socialProviders(settings *auth.Settings, logger auth.Logger) []social.SocialAuthOption {
	callback := func(provider string) string {
		return settings.GetBaseURL() + "/api/auth/callback/" + provider
	}

	var opts []social.SocialAuthOption
	if settings.GoogleClientID != "" && settings.GoogleClientSecret != "" {
		opts = append(opts, social.WithProvider(google.New(google.Config{
			ClientID:     settings.GoogleClientID,
			ClientSecret: settings.GoogleClientSecret,
			CallbackURL:  callback("google"),
		})))
	} else {
		logger.Info("google sign in disabled")
	}

	if settings.GitHubClientID != "" && settings.GitHubClientSecret != "" {
		opts = append(opts, social.WithProvider(github.New(github.Config{
			ClientID:     settings.GitHubClientID,
			ClientSecret: settings.GitHubClientSecret,
			CallbackURL:  callback("github"),
		})))
	} else {
		logger.Info("github sign in disabled")
	}
	return opts
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
