package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"milestone-service/internal/model"
)

// writeError maps domain errors onto HTTP statuses. Conflicts (409) cover
// everything where the request was well-formed but the milestone's current
// state forbids it; 502 marks the payment processor as the failing party.
func writeError(c *gin.Context, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	}

	var perr *model.PaymentProcessorError
	if errors.As(err, &perr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment processor unavailable, retry later"})
		return
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, model.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "illegal status transition"})
	case errors.Is(err, model.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "milestone not ready for payment release"})
	case errors.Is(err, model.ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{"error": "payment already released"})
	case errors.Is(err, model.ErrImmutable):
		c.JSON(http.StatusConflict, gin.H{"error": "milestone is immutable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
