package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/streakforge/internal/config"
	"github.com/dukerupert/streakforge/internal/database"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/docstore"
	"github.com/dukerupert/streakforge/internal/logging"
	"github.com/dukerupert/streakforge/internal/push"
	"github.com/dukerupert/streakforge/internal/server"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/tracker"
	ws "github.com/dukerupert/streakforge/internal/websocket"
)

var _ server.Documents = (*docstore.Store)(nil)

// Globals is passed to every command's Run.
type Globals struct {
	ConfigPath string
}

func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// stores holds the SQLite account database and the configured document store.
type stores struct {
	db    *sql.DB
	docs  server.Documents
	mongo *docstore.Store
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &stores{db: db, docs: store.NewDocuments(db)}

	if cfg.Database.Driver == config.DriverMongo {
		m, err := docstore.Connect(ctx, cfg.Database.MongoURI)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.mongo = m
		s.docs = m
	}
	return s, nil
}

func (s *stores) Close() {
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.mongo.Close(ctx)
	}
	s.db.Close()
}

func newClock(cfg *config.Config) (*datekey.Clock, error) {
	loc, err := datekey.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return datekey.NewClock(loc), nil
}

type ServeCmd struct {
	LogLevel string `help:"Override log.level (debug, info, warn, error)."`
	LogFile  string `help:"Also write logs to this file, rotated." type:"path"`
	LogJSON  bool   `help:"Log as JSON."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.Log.File = c.LogFile
	}
	cfg.Log.JSON = cfg.Log.JSON || c.LogJSON

	logger, logCloser, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clock, err := newClock(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Deps{
		Config: cfg,
		DB:     st.db,
		Docs:   st.docs,
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if st.mongo != nil && cfg.Database.MongoWatch {
		go func() {
			if err := st.mongo.Watch(ctx, srv.Hub(), logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("change stream stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("streakforge listening", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver, "timezone", clock.Location().String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// RecomputeCmd runs outside the server process, so its change notifications
// go to a local hub with no clients. Open sessions see the repair on their
// next snapshot, or at once when the server relays the mongo change stream.
type RecomputeCmd struct {
	Email string `required:"" help:"Email address of the user to repair."`
}

func (c *RecomputeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Log.Level)}))

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clock, err := newClock(cfg)
	if err != nil {
		return err
	}

	p, err := st.docs.FindProfileByEmail(ctx, c.Email)
	if err != nil {
		return fmt.Errorf("find profile: %w", err)
	}
	if p == nil {
		return fmt.Errorf("no user with email %q", c.Email)
	}

	syncer := tracker.New(st.docs, ws.NewHub(logger), clock, logger)
	rec, err := syncer.Recompute(ctx, p.UID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

type VAPIDKeysCmd struct{}

func (c *VAPIDKeysCmd) Run(g *Globals) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("STREAKFORGE_VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Printf("STREAKFORGE_VAPID_PRIVATE_KEY=%s\n", priv)
	return nil
}
