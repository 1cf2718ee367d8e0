package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-api/api"
	"kanban-api/config"
	"kanban-api/domain"
	"kanban-api/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// server holds the assembled echo instance and everything it must release.
type server struct {
	echo    *echo.Echo
	closers []func() error
}

func (s *server) Close(logger *log.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.WithError(err).Warn("close")
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close(logger)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("listening")
		errCh <- srv.echo.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.echo.Shutdown(shutdownCtx)
}

func newServer(ctx context.Context, cfg *config.Config, logger *log.Logger) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		srv.Close(logger)
		return nil, err
	}

	store, err := storage.Open(ctx, storageOptions(cfg))
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	srv.closers = append(srv.closers, store.Close)

	var reminders domain.ReminderScheduler = domain.NopScheduler{}
	if cfg.Queue.Reminders != "" {
		q, err := storage.NewReminderQueue(cfg.Queue.ConnectionString, cfg.Queue.Reminders)
		if err != nil {
			return fail(fmt.Errorf("reminder queue: %w", err))
		}
		reminders = q
	}

	var deduper api.Deduper
	if cfg.Redis.URL != "" {
		opts, err := redisOptions(cfg.Redis.URL)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		rc := redis.NewClient(opts)
		srv.closers = append(srv.closers, rc.Close)
		deduper = api.NewRedisDeduper(rc, cfg.Redis.DedupeTTL)
	} else {
		logger.Warn("redis not configured, idempotency keys are ignored")
	}

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}

	gen := domain.NewShortLinkGenerator(cfg.ShortLink.Length, cfg.ShortLink.MaxAttempts)
	services := api.NewServices(store, gen, reminders, cfg.ShortLink.BaseURL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = api.JSONSerializer{}
	e.HTTPErrorHandler = api.HTTPErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(api.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	e.Use(middleware.Decompress())
	e.Use(api.RequestMetrics(logger))
	e.Use(api.AccessLog(logger))
	api.Register(e, services, auth, deduper, logger)

	srv.echo = e
	return srv, nil
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	ac := api.AuthConfig{
		Mode:         cfg.Mode,
		Secret:       cfg.Secret,
		Audience:     cfg.Audience,
		Issuer:       cfg.Issuer(),
		JWKSCacheTTL: cfg.JWKSCacheTTL,
	}
	if !strings.EqualFold(cfg.Mode, api.AuthModeJWKS) {
		return api.NewAuth(ac, nil)
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(ac, jwks)
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func redisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "=") {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
