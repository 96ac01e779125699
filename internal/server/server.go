package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/streakforge/internal/auth"
	"github.com/dukerupert/streakforge/internal/config"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/email"
	"github.com/dukerupert/streakforge/internal/handler"
	"github.com/dukerupert/streakforge/internal/media"
	"github.com/dukerupert/streakforge/internal/middleware"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/profile"
	"github.com/dukerupert/streakforge/internal/push"
	"github.com/dukerupert/streakforge/internal/reminder"
	"github.com/dukerupert/streakforge/internal/social"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/tracker"
	ws "github.com/dukerupert/streakforge/internal/websocket"
)

// Documents is the per-user document store: the SQLite adapter in package
// store or the MongoDB adapter in package docstore.
type Documents interface {
	tracker.Store
	social.Store
	CreateProfile(ctx context.Context, p model.Profile) error
	ListReminderProfiles(ctx context.Context) ([]model.Profile, error)
}

// Deps are the externally constructed pieces the server is assembled from.
type Deps struct {
	Config *config.Config
	// DB holds accounts, sessions and push subscriptions.
	DB     *sql.DB
	Docs   Documents
	Clock  *datekey.Clock
	Logger *slog.Logger
	// Google overrides ID token validation; defaults to Google's when a client ID is set.
	Google auth.IDTokenValidator
	// Uploader overrides the S3 photo uploader.
	Uploader profile.Uploader
}

type Server struct {
	cfg          *config.Config
	hub          *ws.Hub
	sync         *tracker.Synchronizer
	scheduler    *reminder.Scheduler
	sessionStore *store.SessionStore
	tokens       *auth.Tokens
	rateLimiter  *middleware.RateLimiter
	authH        *handler.AuthHandler
	habitH       *handler.HabitHandler
	profileH     *handler.ProfileHandler
	friendH      *handler.FriendHandler
	pushH        *handler.PushHandler
	logger       *slog.Logger
}

func New(d Deps) (*Server, error) {
	cfg, logger := d.Config, d.Logger
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(d.DB)
	sessionStore := store.NewSessionStore(d.DB)
	pushStore := store.NewPushStore(d.DB)

	metric, err := social.ParseMetric(cfg.Leaderboard.Metric)
	if err != nil {
		return nil, err
	}

	google := d.Google
	if google == nil && cfg.Auth.GoogleClientID != "" {
		google = auth.GoogleValidator{ClientID: cfg.Auth.GoogleClientID}
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accounts := auth.NewAccounts(userStore, sessionStore, d.Docs, tokens, google, logger)

	uploader := d.Uploader
	if uploader == nil {
		uploader = media.NewUploader(cfg.Media, logger)
	}

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	notifier := push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))

	sync := tracker.New(d.Docs, hub, d.Clock, logger.With("component", "tracker"))

	graphOpts := []social.Option{social.WithClock(d.Clock)}
	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.Server.BaseURL)
	if emailClient.Configured() {
		graphOpts = append(graphOpts, social.WithNotifier(emailClient))
	}
	graph := social.New(d.Docs, hub, metric, logger.With("component", "social"), graphOpts...)

	var scheduler *reminder.Scheduler
	if pushSvc.Configured() {
		scheduler = reminder.NewScheduler(d.Docs, notifier, hub, d.Clock, logger)
	}

	return &Server{
		cfg:          cfg,
		hub:          hub,
		sync:         sync,
		scheduler:    scheduler,
		sessionStore: sessionStore,
		tokens:       tokens,
		rateLimiter:  middleware.NewRateLimiter(),
		authH:        handler.NewAuthHandler(accounts, hub, cfg.Server.SecureCookies, logger.With("component", "auth")),
		habitH:       handler.NewHabitHandler(sync, logger.With("component", "habit")),
		profileH:     handler.NewProfileHandler(profile.NewService(d.Docs, uploader, hub, logger), logger.With("component", "profile_handler")),
		friendH:      handler.NewFriendHandler(graph, logger.With("component", "friend")),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, notifier, logger.With("component", "push_handler")),
		logger:       logger,
	}, nil
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Synchronizer returns the streak synchronizer.
func (s *Server) Synchronizer() *tracker.Synchronizer {
	return s.sync
}

// Start runs the reminder scheduler (when push is configured) and periodic
// cleanup until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			s.scheduler.Stop()
		}()
	} else {
		s.logger.Info("push not configured, reminders disabled")
	}
	go s.cleanupLoop(ctx, time.Hour)
	return nil
}

func (s *Server) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessionStore.DeleteExpired(ctx)
			if err != nil {
				s.logger.Error("delete expired sessions", "error", err)
			} else if n > 0 {
				s.logger.Info("expired sessions removed", "count", n)
			}
			s.rateLimiter.Cleanup()
		}
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /login/google", s.rateLimitedHandler(s.authH.GoogleLogin))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.tokens)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.Auth.LoginPerMinute, time.Minute)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)

	mux.HandleFunc("GET /api/snapshot", s.habitH.Snapshot)

	// Habit API routes
	mux.HandleFunc("GET /api/habits", s.habitH.List)
	mux.HandleFunc("POST /api/habits", s.habitH.Create)
	mux.HandleFunc("PUT /api/habits/sort", s.habitH.Sort)
	mux.HandleFunc("POST /api/habits/recompute", s.habitH.Recompute)
	mux.HandleFunc("PUT /api/habits/{id}", s.habitH.Update)
	mux.HandleFunc("DELETE /api/habits/{id}", s.habitH.Delete)
	mux.HandleFunc("POST /api/habits/{id}/toggle", s.habitH.Toggle)
	mux.HandleFunc("GET /api/completions", s.habitH.Completions)

	// Profile API routes
	mux.HandleFunc("GET /api/profile", s.profileH.Get)
	mux.HandleFunc("PUT /api/profile", s.profileH.Update)
	mux.HandleFunc("POST /api/profile/photo", s.profileH.UploadPhoto)
	mux.HandleFunc("PUT /api/profile/reminders", s.profileH.SetReminders)

	// Friends API routes
	mux.HandleFunc("GET /api/friends", s.friendH.Friends)
	mux.HandleFunc("GET /api/friends/requests", s.friendH.Requests)
	mux.HandleFunc("POST /api/friends/requests", s.friendH.Send)
	mux.HandleFunc("POST /api/friends/requests/{id}/accept", s.friendH.Accept)
	mux.HandleFunc("DELETE /api/friends/requests/{id}", s.friendH.End)
	mux.HandleFunc("GET /api/leaderboard", s.friendH.Leaderboard)

	// Push notification API routes
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.Server.AllowedOrigins))
}
