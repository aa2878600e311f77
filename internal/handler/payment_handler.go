package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/service/payment"
)

type PaymentHandler struct {
	gate       *payment.Gate
	projection *payment.ProjectionService
	logger     *zap.Logger
}

func NewPaymentHandler(gate *payment.Gate, projection *payment.ProjectionService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{gate: gate, projection: projection, logger: logger}
}

// ReleasePayment moves a milestone's funds. At most one release ever happens
// per milestone; a repeat returns 409 with the conflict spelled out.
func (h *PaymentHandler) ReleasePayment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}

	pr, err := h.gate.Release(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_request": pr})
}

// ListPaymentRequests returns the derived payment view of a project.
func (h *PaymentHandler) ListPaymentRequests(c *gin.Context) {
	projectID, err := strconv.Atoi(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	requests, summary, err := h.projection.ListPaymentRequests(c.Request.Context(), projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_requests": requests,
		"summary":          summary,
	})
}
