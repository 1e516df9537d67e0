package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
)

type UserHandler struct {
	ledger *services.LedgerService
	log    *zap.Logger
}

func NewUserHandler(ledger *services.LedgerService, log *zap.Logger) *UserHandler {
	return &UserHandler{
		ledger: ledger,
		log:    log,
	}
}

func (h *UserHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	if err := h.ledger.EnsureUser(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, "Failed to open account", err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": models.BalanceResponse{UserID: userID, Balance: balance},
	})
}

func (h *UserHandler) GetHistory(c *gin.Context) {
	userID := c.GetInt64("user_id")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	entries, err := h.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.log, "Failed to get history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entries": entries,
		"count":   len(entries),
	})
}
