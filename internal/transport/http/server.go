// Package fundhttp serves a read-only JSON view over the ledger: portfolio
// history, decisions, signals and model traces.
package fundhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"skinfund/internal/logger"
	"skinfund/internal/store"
	"skinfund/internal/store/tracelog"
)

// ServerConfig describes the server dependencies.
type ServerConfig struct {
	Addr    string
	ExpName string
	Store   store.Store
	Trace   *tracelog.Store
}

// Server exposes the read-only experiment API.
type Server struct {
	addr   string
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{store: cfg.Store, trace: cfg.Trace, expName: cfg.ExpName}
	api := router.Group("/api/v1")
	api.GET("/portfolios", h.listPortfolios)
	api.GET("/decisions", h.listDecisions)
	api.GET("/signals", h.listSignals)
	if cfg.Trace != nil {
		api.GET("/traces", h.listTraces)
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Run blocks until ctx is cancelled, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] listening on %s", s.addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("[http] %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type handlers struct {
	store   store.Store
	trace   *tracelog.Store
	expName string
}

func (h *handlers) configID(c *gin.Context) (string, bool) {
	exp := c.DefaultQuery("exp", h.expName)
	if exp == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exp parameter required"})
		return "", false
	}
	id, err := h.store.GetConfigIDByName(c.Request.Context(), exp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}
	if id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown experiment " + exp})
		return "", false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		return 100
	}
	return limit
}

func (h *handlers) listPortfolios(c *gin.Context) {
	configID, ok := h.configID(c)
	if !ok {
		return
	}
	portfolios, err := h.store.ListPortfolios(c.Request.Context(), configID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios, "count": len(portfolios)})
}

func (h *handlers) listDecisions(c *gin.Context) {
	configID, ok := h.configID(c)
	if !ok {
		return
	}
	decisions, err := h.store.ListDecisions(c.Request.Context(), configID, c.Query("ticker"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

func (h *handlers) listSignals(c *gin.Context) {
	configID, ok := h.configID(c)
	if !ok {
		return
	}
	signals, err := h.store.ListSignals(c.Request.Context(), configID, c.Query("ticker"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (h *handlers) listTraces(c *gin.Context) {
	records, err := h.trace.ListRecords(c.Request.Context(), tracelog.Query{
		Ticker: c.Query("ticker"),
		Step:   c.Query("step"),
		Date:   c.Query("date"),
		Limit:  queryLimit(c),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": records, "count": len(records)})
}
