package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/rp1210test/internal/auth"
	"github.com/danmuck/rp1210test/internal/bus"
	"github.com/danmuck/rp1210test/internal/config"
	"github.com/danmuck/rp1210test/internal/observability"
	"github.com/danmuck/rp1210test/internal/protocol/j1939"
	"github.com/danmuck/rp1210test/internal/protocol/session"
)

const version = "0.1.0"

// StatsSource is implemented by *session.Session.
type StatsSource interface {
	Stats() session.Stats
}

// Server exposes health, metrics and live counters for long running modes such as
// server and log.
type Server struct {
	ID      string
	Addr    string
	Started time.Time

	bus     *bus.Bus[j1939.Frame]
	session StatsSource
	catalog config.Catalog
	router  *gin.Engine
	logger  zerolog.Logger
	auth    auth.Validator
}

func New(id, addr string, b *bus.Bus[j1939.Frame], s StatsSource, cat config.Catalog, logger zerolog.Logger, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Instrument(id, logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	srv := &Server{
		ID:      id,
		Addr:    addr,
		Started: time.Now(),
		bus:     b,
		session: s,
		catalog: cat,
		router:  r,
		logger:  logger,
	}
	srv.registerRoutes()
	return srv
}

// RequireToken guards /stats and /adapters with a bearer token. Health, readiness and
// metrics stay open.
func (s *Server) RequireToken(v auth.Validator) {
	s.auth = v
}

func (s *Server) authorize(c *gin.Context) {
	if s.auth == nil {
		c.Next()
		return
	}
	token, _ := auth.BearerToken(c.GetHeader("Authorization"))
	if err := s.auth.Validate(token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.session != nil && s.session.Stats().Mode != "idle"
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/stats", s.authorize, func(c *gin.Context) {
		body := gin.H{"bus": s.bus.Stats()}
		if s.session != nil {
			body["session"] = s.session.Stats()
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.GET("/adapters", s.authorize, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"adapters": s.catalog.Adapters})
	})
}

// Serve listens until ctx ends, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info().Str("addr", s.Addr).Msg("admin listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
