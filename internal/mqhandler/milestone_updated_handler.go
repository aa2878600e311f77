package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/notification"
	"milestone-service/pkg/util"
)

type MilestoneUpdatedHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewMilestoneUpdatedHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *MilestoneUpdatedHandler {
	return &MilestoneUpdatedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *MilestoneUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal MilestoneUpdatedPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "milestone_updated", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	// Every edit voids the homeowner's prior approval, so they are the one
	// who needs to hear about it.
	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingMilestoneUpdated,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   model.ActorHomeowner,
		Message:     fmt.Sprintf("Milestone %q was edited (%s); your approval has been reset", p.Title, strings.Join(p.Changed, ", ")),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingMilestoneUpdated),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
