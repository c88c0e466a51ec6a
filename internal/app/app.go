package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/nocturnal-server/internal/auth"
	"github.com/vovakirdan/nocturnal-server/internal/config"
	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/service/scheduled"
	"github.com/vovakirdan/nocturnal-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/nocturnal-server/internal/transport/http"
)

// App wires together storage, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	dispatcher      *scheduled.Dispatcher
	store           *sqlite.SQLiteStore
	log             *zerolog.Logger
}

// OpenStore opens the database at cfg.DatabasePath and applies the schema.
func OpenStore(ctx context.Context, cfg *config.Config) (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// NewAuthService builds the token service from configuration.
func NewAuthService(cfg *config.Config, st *sqlite.SQLiteStore) *auth.Service {
	return auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	policy, err := core.ParseStatusPolicy(cfg.StatusPolicy)
	if err != nil {
		return nil, err
	}
	if cfg.JWTRequired && cfg.JWTSecret == "" {
		return nil, errors.New("jwt_required is set but jwt_secret is empty")
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// Tokens are disabled without a secret; the gateway header stays available.
	var authService *auth.Service
	if cfg.JWTSecret != "" {
		authService = NewAuthService(cfg, st)
	} else {
		logger.Warn().Msg("jwt_secret is empty, token authentication disabled")
	}

	fanout := core.NewFanout(core.NewRegistry(), logger)
	engine := core.NewEngine(st, fanout, policy, logger)
	scheduler := scheduled.New(st, fanout, logger)
	dispatcher := scheduled.NewDispatcher(st, engine, cfg.DispatchInterval, cfg.DispatchBatchSize, logger)
	hub := core.NewHub(engine, scheduler, logger)

	server := transporthttp.NewServer(hub, engine, scheduler, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		dispatcher:      dispatcher,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the hub, the scheduled dispatcher and the HTTP server, and blocks
// until context cancellation or the first fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
