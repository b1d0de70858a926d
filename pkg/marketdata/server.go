package marketdata

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string
	Port int
	// Debug keeps gin in debug mode; off by default.
	Debug  bool
	Logger *slog.Logger
}

// Server exposes the market-data API consumed by the frontend and by the
// parser's live symbol search:
//
//	GET /api/v1/symbol-search?q=
//	GET /api/v1/quote/:symbol
//	GET /api/v1/history/:symbol?range=&interval=
//	GET /api/v1/health
type Server struct {
	cfg      ServerConfig
	upstream *Upstream
	engine   *gin.Engine
	log      *slog.Logger
}

// NewServer builds the gin engine and registers routes.
func NewServer(cfg ServerConfig, upstream *Upstream) (*Server, error) {
	if upstream == nil {
		return nil, core.NewInvalidRequestError("upstream is required")
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		engine:   gin.New(),
		log:      logger.With("component", "marketdata_server"),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(corsMiddleware())

	api := s.engine.Group("/api/v1")
	api.GET("/symbol-search", s.symbolSearch)
	api.GET("/quote/:symbol", s.quote)
	api.GET("/history/:symbol", s.history)
	api.GET("/health", s.health)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves the API until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info("market-data API listening", "addr", addr)
	return s.engine.Run(addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) symbolSearch(c *gin.Context) {
	query := c.Query("q")
	matches, err := s.upstream.Search(c.Request.Context(), query)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "matches": matches})
}

func (s *Server) quote(c *gin.Context) {
	quote, err := s.upstream.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) history(c *gin.Context) {
	symbol := c.Param("symbol")
	candles, err := s.upstream.History(c.Request.Context(), symbol, c.Query("range"), c.Query("interval"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(symbol), "candles": candles})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		switch coreErr.Type {
		case core.ErrInvalidRequest:
			status = http.StatusBadRequest
		case core.ErrNotFound:
			status = http.StatusNotFound
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
