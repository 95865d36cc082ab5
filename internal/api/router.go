package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/cheese-wager/internal/coordinator"
	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/msgcat"
	"github.com/park285/cheese-wager/internal/session"
)

// Sessions is the read-only coordinator surface.
type Sessions interface {
	Session(id string) (*session.Session, error)
	Sessions() []*session.Session
	SessionForBet(betID string) (*session.Session, bool)
	Stats() coordinator.Stats
	CheckConsistency() error
}

// Settlements looks up journal records.
type Settlements interface {
	Get(ctx context.Context, betID string) (*journal.Record, error)
}

// Router serves the read API and mounts the realtime gateway on /ws.
type Router struct {
	engine *gin.Engine

	sessions    Sessions
	ledger      ledger.Reader
	settlements Settlements
	cat         *msgcat.Catalog
	ws          http.Handler

	origins        []string
	callTimeout    time.Duration
	availableLimit int
	now            func() time.Time
}

type Option func(*Router)

func WithSettlements(s Settlements) Option { return func(r *Router) { r.settlements = s } }

func WithCatalog(c *msgcat.Catalog) Option { return func(r *Router) { r.cat = c } }

// WithWebsocket mounts h on GET /ws.
func WithWebsocket(h http.Handler) Option { return func(r *Router) { r.ws = h } }

// WithAllowedOrigins sets the CORS origin host patterns.
func WithAllowedOrigins(p ...string) Option {
	return func(r *Router) { r.origins = append(r.origins, p...) }
}

func WithCallTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithAvailableLimit bounds how many recent bets /api/bets/available scans.
func WithAvailableLimit(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.availableLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRouter wires the routes. A nil reader means the ledger is offline.
func NewRouter(sessions Sessions, reader ledger.Reader, opts ...Option) *Router {
	if reader == nil {
		reader = ledger.Offline{}
	}
	r := &Router{
		sessions:       sessions,
		ledger:         reader,
		callTimeout:    15 * time.Second,
		availableLimit: 50,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cat == nil {
		r.cat = msgcat.MustDefault()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(cors(r.origins))
	r.engine = engine
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/", r.index)
	r.engine.GET("/health", r.health)

	api := r.engine.Group("/api")
	{
		api.GET("/bet/:id", r.getBet)
		api.GET("/bets/available", r.availableBets)

		api.GET("/stats/:address", r.playerStats)
		api.GET("/player/:address/stats", r.playerStats)

		api.GET("/games", r.listGames)
		api.GET("/games/active", r.listGames)
		api.GET("/game/:id", r.getGame)
		api.GET("/game/:id/pgn", r.gamePGN)
		api.GET("/game/:id/board.png", r.gameBoard)

		api.GET("/blockchain/status", r.blockchainStatus)
		api.GET("/settlements/:betId", r.settlement)
	}

	if r.ws != nil {
		r.engine.GET("/ws", gin.WrapH(r.ws))
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
}

// Handler returns the gin engine as an http.Handler.
func (r *Router) Handler() http.Handler { return r.engine }

// Engine exposes the gin engine for tests.
func (r *Router) Engine() *gin.Engine { return r.engine }

func (r *Router) callContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), r.callTimeout)
}

// fail writes {success:false,error} with the catalog text for key.
func (r *Router) fail(c *gin.Context, status int, key string, data any, fallback string) {
	c.JSON(status, gin.H{"success": false, "error": r.cat.Text("api."+key, data, fallback)})
}
