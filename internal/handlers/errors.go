package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindNotFound:          http.StatusNotFound,
	models.KindConflict:          http.StatusConflict,
	models.KindInvalidInput:      http.StatusBadRequest,
	models.KindInsufficientFunds: http.StatusPaymentRequired,
	models.KindExhausted:         http.StatusServiceUnavailable,
	models.KindTransient:         http.StatusServiceUnavailable,
}

// respondError maps an error kind to a status. Internal and transient
// failures are logged and reported without details.
func respondError(c *gin.Context, log *zap.Logger, message string, err error) {
	kind := models.Kind(err)
	status, ok := kindStatus[kind]
	if !ok {
		log.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": message,
			"kind":  models.KindInternal,
		})
		return
	}
	if kind == models.KindTransient || kind == models.KindExhausted {
		log.Warn(message, zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := gin.H{
		"error": message,
		"kind":  kind,
	}
	// transient failures carry driver text
	if kind != models.KindTransient {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}
