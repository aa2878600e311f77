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

// MilestoneApprovalHandler covers both approvals and rejections; the payload
// carries which one it was. The counterparty of the acting side is notified.
type MilestoneApprovalHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewMilestoneApprovalHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *MilestoneApprovalHandler {
	return &MilestoneApprovalHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *MilestoneApprovalHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneApprovalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal MilestoneApprovalPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "milestone_approval", dedupeKey(p.MilestoneID, p.TraceID)) {
		return nil
	}

	recipient := model.ActorHomeowner
	if model.Actor(p.Actor) == model.ActorHomeowner {
		recipient = model.ActorContractor
	}

	message := fmt.Sprintf("Milestone %q was approved by the %s", p.Title, p.Actor)
	if !p.Approved {
		message = fmt.Sprintf("Milestone %q was rejected by the %s: %s", p.Title, p.Actor, p.Reason)
	}

	err := h.sender.Deliver(ctx, notification.Notice{
		Event:       mqcontracts.RoutingMilestoneApproval,
		MilestoneID: p.MilestoneID,
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Recipient:   recipient,
		Message:     message,
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingMilestoneApproval),
			zap.Int("milestone_id", p.MilestoneID),
			zap.Error(err),
		)
	}
	return nil
}
