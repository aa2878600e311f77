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

type MilestoneCancelledHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewMilestoneCancelledHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *MilestoneCancelledHandler {
	return &MilestoneCancelledHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *MilestoneCancelledHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneCancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal MilestoneCancelledPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "milestone_cancelled", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingMilestoneCancelled,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   model.ActorHomeowner,
		Message:     fmt.Sprintf("Milestone %q was cancelled", p.Title),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingMilestoneCancelled),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
