package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
)

type GameHandler struct {
	rounds *services.RoundService
	engine *services.SettlementEngine
	feed   *services.AnchorFeed
	log    *zap.Logger
}

func NewGameHandler(rounds *services.RoundService, engine *services.SettlementEngine, feed *services.AnchorFeed, log *zap.Logger) *GameHandler {
	return &GameHandler{
		rounds: rounds,
		engine: engine,
		feed:   feed,
		log:    log,
	}
}

func (h *GameHandler) CreateRound(c *gin.Context) {
	var req models.CreateRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	round, err := h.rounds.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, "Failed to create round", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"round":   round,
	})
}

func (h *GameHandler) GetRound(c *gin.Context) {
	roundID := c.Param("id")

	round, err := h.rounds.Get(c.Request.Context(), roundID)
	if err != nil {
		respondError(c, h.log, "Failed to get round", err)
		return
	}

	draws, err := h.rounds.Draws(c.Request.Context(), roundID)
	if err != nil {
		respondError(c, h.log, "Failed to list draws", err)
		return
	}
	if draws == nil {
		draws = []models.Draw{}
	}

	resp := gin.H{
		"success": true,
		"round":   round,
		"draws":   draws,
	}
	if c.Query("bets") == "true" {
		bets, err := h.rounds.ListBets(c.Request.Context(), roundID)
		if err != nil {
			respondError(c, h.log, "Failed to list bets", err)
			return
		}
		resp["bets"] = bets
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) PlaceBet(c *gin.Context) {
	var req models.BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	req.RoundID = c.Param("id")
	req.UserID = c.GetInt64("user_id")

	bet, err := h.rounds.PlaceBet(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"bet":     bet,
	})
}

func (h *GameHandler) FinalizeRound(c *gin.Context) {
	settlement, err := h.engine.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "Failed to finalize round", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"settlement": settlement,
	})
}

// Verify lets anyone recompute a seed entry from its public hash.
func (h *GameHandler) Verify(c *gin.Context) {
	hash := c.Query("hash")
	seq, err := strconv.Atoi(c.Query("seq"))
	if hash == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash and numeric seq are required"})
		return
	}

	data, err := h.feed.Verify(hash, seq)
	if err != nil {
		respondError(c, h.log, "Failed to verify", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// Audit returns the stored sequence of an anchor next to its recomputation.
func (h *GameHandler) Audit(c *gin.Context) {
	hash := c.Query("hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash is required"})
		return
	}

	audit, err := h.feed.Audit(c.Request.Context(), hash)
	if err != nil {
		respondError(c, h.log, "Failed to audit seed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"audit":   audit,
	})
}

func (h *GameHandler) LatestAnchor(c *gin.Context) {
	anchor, err := h.feed.Latest(c.Request.Context())
	if err != nil {
		respondError(c, h.log, "Failed to get latest anchor", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"anchor":  anchor,
	})
}
