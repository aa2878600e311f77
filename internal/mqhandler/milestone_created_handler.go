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

// dedupeKey builds the once-guard key for a consumed event. The trace id is
// unique per originating command, so redeliveries of the same event share a
// key while distinct commands on the same milestone do not.
func dedupeKey(milestoneID int, traceID string) string {
	return fmt.Sprintf("%d:%s", milestoneID, traceID)
}

type MilestoneCreatedHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewMilestoneCreatedHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *MilestoneCreatedHandler {
	return &MilestoneCreatedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *MilestoneCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal MilestoneCreatedPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "milestone_created", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	// Delivery is attempted once; a failure must not requeue the event, so
	// the error stops here.
	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingMilestoneCreated,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   model.ActorHomeowner,
		Message:     fmt.Sprintf("New milestone %q proposed (due %s)", p.Title, p.DueDate),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingMilestoneCreated),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
