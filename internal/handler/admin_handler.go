package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/pkg/outbox"
)

// AdminHandler exposes the operator surface: outbox event replay. Routes are
// guarded by the admin token middleware, not by actor tokens.
type AdminHandler struct {
	replay *outbox.ReplayService
	logger *zap.Logger
}

func NewAdminHandler(replay *outbox.ReplayService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replay: replay, logger: logger}
}

func (h *AdminHandler) ReplayEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		h.logger.Error("Event replay failed", zap.Int64("event_id", eventID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay failed"})
		return
	}

	h.logger.Info("Event replayed", zap.Int64("event_id", eventID))
	c.JSON(http.StatusOK, gin.H{"status": "replayed"})
}

func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	replayed, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed-event replay aborted",
			zap.Int("replayed", replayed),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replay failed", "replayed": replayed})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "replayed": replayed})
}
