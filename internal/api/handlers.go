package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/archive"
	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/render"
	"github.com/park285/cheese-wager/internal/session"
)

type fetchData struct{ What string }

func (r *Router) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": r.cat.Text("api.index", nil, "Chess Game Server with Blockchain Betting"),
		"endpoints": gin.H{
			"socket":     "/ws",
			"health":     "/health",
			"bet":        "/api/bet/:betId",
			"stats":      "/api/stats/:address",
			"games":      "/api/games",
			"game":       "/api/game/:id",
			"blockchain": "/api/blockchain/status",
			"settlement": "/api/settlements/:betId",
		},
		"blockchainEnabled": r.ledger.Enabled(),
	})
}

func (r *Router) health(c *gin.Context) {
	st := r.sessions.Stats()
	consistent := true
	if err := r.sessions.CheckConsistency(); err != nil {
		consistent = false
		obslog.L().Error("store_inconsistent", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"activeGames":       st.Active,
		"waitingGames":      st.Waiting,
		"totalGames":        st.Total,
		"blockchainEnabled": r.ledger.Enabled(),
		"storeConsistent":   consistent,
		"timestamp":         r.now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) getBet(c *gin.Context) {
	betID, err := ledger.CanonicalBetID(c.Param("id"))
	if err != nil {
		r.fail(c, http.StatusBadRequest, "invalid_bet_id", nil, "Invalid bet ID")
		return
	}
	if !r.ledger.Enabled() {
		r.fail(c, http.StatusOK, "blockchain_disabled", nil, "Blockchain integration disabled")
		return
	}
	ctx, cancel := r.callContext(c)
	defer cancel()
	bet, err := r.ledger.GetBet(ctx, betID)
	switch {
	case errors.Is(err, ledger.ErrBetNotFound):
		r.fail(c, http.StatusNotFound, "bet_not_found", nil, "Bet not found")
		return
	case err != nil:
		obslog.L().Warn("api_get_bet_failed", zap.String("bet_id", betID), zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "bet details"}, "Failed to fetch bet details")
		return
	}
	out := gin.H{"success": true, "bet": bet}
	if s, ok := r.sessions.SessionForBet(betID); ok {
		out["sessionId"] = s.ID
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) availableBets(c *gin.Context) {
	ctx, cancel := r.callContext(c)
	defer cancel()
	bets, err := r.ledger.AvailableBets(ctx, r.availableLimit)
	if err != nil {
		obslog.L().Warn("api_available_bets_failed", zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "available bets"}, "Failed to fetch available bets")
		return
	}
	if bets == nil {
		bets = []*ledger.Bet{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(bets), "bets": bets})
}

func (r *Router) playerStats(c *gin.Context) {
	addr := c.Param("address")
	if !ledger.ValidAddress(addr) {
		r.fail(c, http.StatusBadRequest, "invalid_address", nil, "Invalid Ethereum address")
		return
	}
	if !r.ledger.Enabled() {
		r.fail(c, http.StatusOK, "blockchain_disabled", nil, "Blockchain integration disabled")
		return
	}
	ctx, cancel := r.callContext(c)
	defer cancel()
	stats, err := r.ledger.PlayerStats(ctx, addr)
	if err != nil {
		obslog.L().Warn("api_player_stats_failed", zap.String("address", addr), zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "player statistics"}, "Failed to fetch player statistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (r *Router) listGames(c *gin.Context) {
	var filter session.Status
	if raw := c.Query("status"); raw != "" {
		filter = session.Status(raw)
		switch filter {
		case session.StatusWaiting, session.StatusActive, session.StatusCompleted,
			session.StatusAbandoned, session.StatusCancelled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown status " + strconv.Quote(raw)})
			return
		}
	}
	games := make([]gameSummary, 0)
	for _, s := range r.sessions.Sessions() {
		if filter != "" && s.Status != filter {
			continue
		}
		games = append(games, summarize(s))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(games), "games": games})
}

func (r *Router) lookupGame(c *gin.Context) (*session.Session, bool) {
	s, err := r.sessions.Session(c.Param("id"))
	if err != nil {
		r.fail(c, http.StatusNotFound, "game_not_found", nil, "Game not found")
		return nil, false
	}
	return s, true
}

func (r *Router) getGame(c *gin.Context) {
	s, ok := r.lookupGame(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": detail(s)})
}

func (r *Router) gamePGN(c *gin.Context) {
	s, ok := r.lookupGame(c)
	if !ok {
		return
	}
	pgn := archive.BuildPGN(archive.FromSession(s))
	c.Header("Content-Disposition", `inline; filename="`+s.ID+`.pgn"`)
	c.Data(http.StatusOK, "application/x-chess-pgn; charset=utf-8", []byte(pgn))
}

func (r *Router) gameBoard(c *gin.Context) {
	s, ok := r.lookupGame(c)
	if !ok {
		return
	}
	opts := render.Options{SquareSize: 64, Highlight: true}
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 16 || n > 128 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "size must be between 16 and 128"})
			return
		}
		opts.SquareSize = n
	}
	if flip, err := strconv.ParseBool(c.DefaultQuery("flip", "false")); err == nil {
		opts.Flip = flip
	}
	png, err := render.BoardPNG(c.Request.Context(), s.Game, opts)
	if err != nil {
		obslog.L().Warn("api_board_render_failed", zap.String("session_id", s.ID), zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "board image"}, "Failed to render board")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (r *Router) blockchainStatus(c *gin.Context) {
	ctx, cancel := r.callContext(c)
	defer cancel()
	st, err := r.ledger.Status(ctx)
	if err != nil {
		obslog.L().Warn("api_blockchain_status_failed", zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "blockchain status"}, "Failed to fetch blockchain status")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"enabled":    st.Enabled,
		"totalBets":  st.TotalBets,
		"activeBets": st.ActiveBets,
		"chainId":    st.ChainID,
		"block":      st.Block,
		"contract":   st.Contract,
	})
}

func (r *Router) settlement(c *gin.Context) {
	betID, err := ledger.CanonicalBetID(c.Param("betId"))
	if err != nil {
		r.fail(c, http.StatusBadRequest, "invalid_bet_id", nil, "Invalid bet ID")
		return
	}
	if r.settlements == nil {
		r.fail(c, http.StatusNotFound, "settlement_not_found", nil, "No settlement recorded for this bet")
		return
	}
	ctx, cancel := r.callContext(c)
	defer cancel()
	rec, err := r.settlements.Get(ctx, betID)
	switch {
	case errors.Is(err, journal.ErrNotFound):
		r.fail(c, http.StatusNotFound, "settlement_not_found", nil, "No settlement recorded for this bet")
		return
	case err != nil:
		obslog.L().Warn("api_settlement_failed", zap.String("bet_id", betID), zap.Error(err))
		r.fail(c, http.StatusOK, "fetch_failed", fetchData{What: "settlement"}, "Failed to fetch settlement")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settlement": rec})
}
