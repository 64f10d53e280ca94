// Package api exposes the rooms over HTTP: the public game endpoints used by
// clients and the token protected operator endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/internal/metrics"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/ratelimiter"
	"github.com/fystack/jackpot-engine/pkg/store/activitystore"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

const (
	limiterSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
	defaultActivityLimit = 100
)

// PayoutRetrier re-queues a failed payout.
type PayoutRetrier interface {
	Retry(ctx context.Context, room string, round uint64) (*model.Payout, error)
}

type Deps struct {
	Rooms    *jackpot.Manager
	Admin    *jackpot.AdminService
	Activity activitystore.Store
	Payouts  payoutstore.Store
	Retrier  PayoutRetrier
	Metrics  *metrics.Collector
	Config   config.HTTPConfig
	Version  string
}

type Server struct {
	deps     Deps
	limiter  *ratelimiter.PooledRateLimiter
	validate *validator.Validate
}

func NewServer(deps Deps) *Server {
	rps := deps.Config.JoinRPS
	if rps <= 0 {
		rps = 5
	}
	burst := deps.Config.JoinBurst
	if burst <= 0 {
		burst = 10
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	return &Server{
		deps:     deps,
		limiter:  ratelimiter.NewPooledRateLimiter(time.Second/time.Duration(rps), burst),
		validate: validator.New(),
	}
}

func (s *Server) Routes() http.Handler {
	origins := s.deps.Config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         60 * 15,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Route("/api", func(rr chi.Router) {
		rr.Get("/rooms", s.handleRooms)
		rr.Post("/fairness/verify", s.handleVerify)
		rr.Route("/rooms/{room}", func(room chi.Router) {
			room.Get("/state", s.handleState)
			room.Post("/join", s.handleJoin)
			room.Get("/winners", s.handleWinners)
			room.Post("/wallet/{action}", s.handleWalletActivity)
		})

		rr.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireAdmin)
			admin.Route("/rooms/{room}", func(room chi.Router) {
				room.Get("/config", s.handleGetConfig)
				room.Patch("/config", s.handleUpdateConfig)
				room.Put("/forced-winner", s.handleSetForcedWinner)
				room.Delete("/forced-winner", s.handleClearForcedWinner)
				room.Post("/favored", s.handleAddFavored)
				room.Delete("/favored/{address}", s.handleRemoveFavored)
				room.Get("/activity", s.handleListActivity)
				room.Delete("/activity", s.handleClearActivity)
				room.Get("/payouts", s.handleListPayouts)
				room.Post("/payouts/{round}/retry", s.handleRetryPayout)
			})
		})
	})
	return r
}

// Run serves on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.deps.Config.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepLimiters(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Jackpot HTTP server started",
			"port", s.deps.Config.Port,
			"health_endpoint", "/health",
			"metrics_endpoint", "/metrics",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("Jackpot HTTP server stopped")
	return nil
}

func (s *Server) sweepLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.limiter.Close()
			return
		case now := <-ticker.C:
			if n := s.limiter.Sweep(now); n > 0 {
				logger.Debug("Dropped idle join limiters", "count", n)
			}
		}
	}
}

func (s *Server) room(r *http.Request) (*jackpot.Room, error) {
	return s.deps.Rooms.Room(chi.URLParam(r, "room"))
}
