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

type MilestoneCompletedHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewMilestoneCompletedHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *MilestoneCompletedHandler {
	return &MilestoneCompletedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *MilestoneCompletedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal MilestoneCompletedPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "milestone_completed", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingMilestoneCompleted,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   model.ActorHomeowner,
		Message:     fmt.Sprintf("Milestone %q was marked complete and awaits your approval", p.Title),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingMilestoneCompleted),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
