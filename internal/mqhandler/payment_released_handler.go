package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/notification"
	"milestone-service/pkg/util"
)

type PaymentReleasedHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewPaymentReleasedHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *PaymentReleasedHandler {
	return &PaymentReleasedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *PaymentReleasedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.PaymentReleasedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal PaymentReleasedPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "payment_released", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	// The release is triggered from the homeowner's side, so the contractor
	// is the one waiting on this news.
	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingPaymentReleased,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   model.ActorContractor,
		Message:     fmt.Sprintf("Payment for milestone %q has been released (ref %s)", p.Title, p.TransactionRef),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingPaymentReleased),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
