package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pliu/ponyexpress/internal/api"
	"github.com/pliu/ponyexpress/internal/auth"
	"github.com/pliu/ponyexpress/internal/config"
	"github.com/pliu/ponyexpress/internal/handlers"
	"github.com/pliu/ponyexpress/internal/query"
	"github.com/pliu/ponyexpress/internal/router"
	"github.com/pliu/ponyexpress/internal/session"
	"github.com/pliu/ponyexpress/internal/store"
	"github.com/pliu/ponyexpress/internal/store/redisstore"
	"github.com/pliu/ponyexpress/internal/store/sqlstore"
	"github.com/pliu/ponyexpress/internal/telemetry"
	"github.com/pliu/ponyexpress/internal/views"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := telemetry.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("ponyexpress stopped")
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "redis":
		return redisstore.New(cfg.RedisAddr)
	default:
		// Connect to Postgres with e.g.
		// "user=user password=password dbname=ponyexpress sslmode=disable host=localhost port=5432"
		return sqlstore.New(cfg.StoreDriver, cfg.StoreDSN)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	reg := telemetry.NewRegistry()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s session store: %w", cfg.StoreDriver, err)
	}
	defer st.Close()

	sealer, err := auth.NewSealer(cfg.SessionSecret)
	if err != nil {
		return err
	}

	client := api.New(cfg.APIURL,
		api.WithTimeout(cfg.APITimeout),
		api.WithMetrics(api.NewMetrics(reg)),
	)
	authSvc := auth.NewService(client, st, sealer, log)

	sessions := session.NewManager(client, query.Config{
		StaleTime:    cfg.StaleTime,
		GCTime:       cfg.GCTime,
		FetchTimeout: cfg.APITimeout,
		Metrics:      query.NewMetrics(reg),
	}, cfg.GCTime, log)
	defer sessions.Close()
	if err := sessions.Register(reg); err != nil {
		return err
	}

	renderer, err := views.New()
	if err != nil {
		return err
	}

	base := &handlers.Base{
		Views:    renderer,
		Sessions: sessions,
		Auth:     authSvc,
		Cookies: auth.Cookies{
			Name:   cfg.CookieName,
			Secure: cfg.CookieSecure,
			Signer: auth.NewSigner(cfg.SessionSecret),
		},
		RenderWait: cfg.RenderWait,
		Log:        log,
	}
	h := router.New(router.Config{
		Auth:     &handlers.AuthHandler{Base: base},
		Chat:     &handlers.ChatHandler{Base: base, API: client, PollInterval: cfg.PollInterval},
		Resolver: authSvc,
		Log:      log,
		Metrics:  telemetry.MetricsHandler(reg),
	})

	go sweep(ctx, authSvc, sessions, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("api", cfg.APIURL).Str("store", cfg.StoreDriver).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(c)
}

// sweep drops expired sessions from the store and idle session state from
// memory.
func sweep(ctx context.Context, authSvc *auth.Service, sessions *session.Manager, log zerolog.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := authSvc.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep sessions")
			} else if n > 0 {
				log.Info().Int64("expired", n).Msg("sessions expired")
			}
			sessions.Sweep()
		}
	}
}
