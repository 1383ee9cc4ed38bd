// Package httpapi exposes the escrow operations over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/service"
)

// Services are the operations the API serves.
type Services struct {
	Rooms    *service.RoomService
	Platform *service.PlatformService
	Ledger   *service.LedgerService
	// Health reports backing store health on /healthz. Optional.
	Health HealthChecker
}

// HealthChecker is implemented by db.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP front of the escrow engine.
type Server struct {
	cfg     config.HTTPConfig
	svc     Services
	secret  []byte
	limiter Counter
	engine  *gin.Engine
}

// New builds the server and its routes. limiter may be nil.
func New(cfg config.HTTPConfig, svc Services, limiter Counter) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		secret:  []byte(cfg.JWTSecret),
		limiter: limiter,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) {
		if s.svc.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.svc.Health.HealthCheck(ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(s.authenticate())

	v1.GET("/platform", s.getPlatform)

	rooms := v1.Group("/rooms")
	rooms.POST("/pool", s.createPoolRoom)
	rooms.POST("/asset", s.createAssetRoom)
	rooms.GET("", s.listRooms)
	rooms.GET("/:host/:room_id", s.getRoom)
	rooms.GET("/:host/:room_id/entries", s.listEntries)
	rooms.GET("/:host/:room_id/events", s.listEvents)
	rooms.POST("/:host/:room_id/join", rateLimit(s.limiter, "join", s.cfg.JoinRateLimit, s.cfg.JoinRateWindow), s.join)
	rooms.POST("/:host/:room_id/close", s.closeJoining)
	rooms.POST("/:host/:room_id/winners", s.declareWinners)
	rooms.POST("/:host/:room_id/end", s.end)
	rooms.POST("/:host/:room_id/prizes/:slot", s.depositPrize)

	v1.POST("/accounts", s.openAccount)
	v1.GET("/accounts", s.listAccounts)

	admin := v1.Group("/admin")
	admin.PATCH("/policy", s.updatePolicy)
	admin.POST("/pause", s.setPause)
	admin.POST("/assets", s.approveAsset)
	admin.DELETE("/assets/:asset", s.removeAsset)
	admin.POST("/mint", s.mint)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server started")
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

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
