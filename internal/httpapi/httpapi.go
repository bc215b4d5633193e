// Package httpapi is the admin/status surface: health check,
// per-environment OAuth status, open positions, and a Prometheus scrape
// endpoint, gated by a shared-secret bearer token.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steinwealth/easyorb/internal/compound"
	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/exit"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/metrics"
	"github.com/steinwealth/easyorb/internal/oauth"
)

// OAuthStatus is the subset of oauth.Manager the server needs, narrowed to
// an interface so tests don't need a live Manager.
type OAuthStatus interface {
	Status(env config.Environment) oauth.Status
}

// RunnerView is the subset of session.Runner the server needs. Kept as an
// interface (rather than importing internal/session directly) so httpapi
// has no dependency on the orchestration layer's wiring.
type RunnerView interface {
	Compound() *compound.Engine
	ExitEngine() *exit.Engine
}

// Server is the admin HTTP server.
type Server struct {
	cfg    *config.Config
	oauthM OAuthStatus
	runner RunnerView
	engine *gin.Engine
	log    *logger.Logger
}

// New builds the gin engine and registers routes. An empty
// cfg.AdminJWTSecret disables bearer-token enforcement, useful for local
// development only.
func New(cfg *config.Config, oauthM OAuthStatus, runner RunnerView) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, oauthM: oauthM, runner: runner, engine: gin.New(), log: logger.For("httpapi")}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Run blocks serving on addr until the process exits or the listener errors.
func (s *Server) Run(addr string) error {
	s.log.Infof("admin HTTP server listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)

	protected := s.engine.Group("/")
	protected.Use(s.bearerAuth())
	protected.GET("/status/:env", s.handleStatus)
	protected.GET("/positions", s.handlePositions)
	protected.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// bearerAuth validates an HS256-signed bearer token against the shared
// admin secret. A blank AdminJWTSecret disables the check entirely, which
// is only acceptable for a localhost-bound dev server.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminJWTSecret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := header[len(prefix):]
		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.AdminJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token: " + err.Error()})
			return
		}
		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	env := config.Environment(c.Param("env"))
	if env != config.Sandbox && env != config.Production {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown environment " + string(env)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"oauth":    s.oauthM.Status(env),
		"compound": s.runner.Compound().Snapshot(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	ids := s.runner.ExitEngine().Open()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		pos, ok := s.runner.ExitEngine().Position(id)
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"position_id": pos.PositionID,
			"symbol":      pos.Symbol,
			"side":        pos.Side,
			"signal_type": pos.SignalType,
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"current":     pos.CurrentPrice,
			"stop_loss":   pos.CurrentStopLoss,
			"substate":    pos.Substate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}
