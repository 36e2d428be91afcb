// Package api exposes the browser-extension sync API: recently posted
// events, a hot-events proxy and per-user watchlist sync.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/polydictions/polydictions/internal/config"
	"github.com/polydictions/polydictions/internal/filter"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/models"
	"github.com/polydictions/polydictions/internal/storage"
)

const defaultEventLimit = 20

// MarketGateway is the slice of the market client the API needs.
type MarketGateway interface {
	FetchHotEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// Server is the extension-sync HTTP server.
type Server struct {
	store     *storage.Storage
	market    MarketGateway
	secretKey string
	httpSrv   *http.Server
}

// NewServer builds the server and its routes.
func NewServer(store *storage.Storage, market MarketGateway, cfg *config.APIConfig) *Server {
	s := &Server{
		store:     store,
		market:    market,
		secretKey: cfg.SecretKey,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), cors())

	api := router.Group("/api")
	if s.secretKey != "" {
		api.Use(s.auth())
	}
	api.GET("/new-markets", s.handleNewMarkets)
	api.GET("/events", s.handleEvents)
	api.GET("/watchlist/:user_id", s.handleGetWatchlist)
	api.POST("/watchlist/:user_id", s.handlePutWatchlist)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("API server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != s.secretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

// handleNewMarkets returns the recently posted events, newest first.
func (s *Server) handleNewMarkets(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultEventLimit)

	posted, err := s.store.GetPostedEvents(limit)
	if err != nil {
		logger.Error("Failed to load posted events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	type postedEvent struct {
		EventID   string  `json:"event_id"`
		Slug      string  `json:"slug"`
		Title     string  `json:"title"`
		Volume    float64 `json:"volume"`
		Liquidity float64 `json:"liquidity"`
		PostedAt  string  `json:"posted_at"`
	}
	out := make([]postedEvent, 0, len(posted))
	for _, p := range posted {
		out = append(out, postedEvent{
			EventID:   p.EventID,
			Slug:      p.EventSlug,
			Title:     p.Title,
			Volume:    p.Volume,
			Liquidity: p.Liquidity,
			PostedAt:  p.PostedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out, "count": len(out)})
}

// handleEvents proxies the hot-events feed.
func (s *Server) handleEvents(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultEventLimit)

	events, err := s.market.FetchHotEvents(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to fetch events: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream fetch failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// handleGetWatchlist returns a user's watched slugs.
func (s *Server) handleGetWatchlist(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	slugs, err := s.store.GetUserWatchlist(userID)
	if err != nil {
		logger.Error("Failed to load watchlist for %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "watchlist": slugs})
}

// handlePutWatchlist replaces a user's watchlist with the posted slugs.
func (s *Server) handlePutWatchlist(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var body struct {
		Watchlist []string `json:"watchlist"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var slugs []string
	for _, raw := range body.Watchlist {
		slug := filter.ParseEventURL(raw)
		if slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid slug: %q", raw)})
			return
		}
		slugs = append(slugs, slug)
	}

	if _, _, err := s.store.GetOrCreateUser(userID); err != nil {
		logger.Error("Failed to create user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := s.store.ReplaceWatchlist(userID, slugs); err != nil {
		logger.Error("Failed to replace watchlist for %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "count": len(slugs)})
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		return def
	}
	return n
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}
