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

type DocumentUploadedHandler struct {
	sender  *notification.Sender
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewDocumentUploadedHandler(sender *notification.Sender, deduper *util.Deduper, logger *zap.Logger) *DocumentUploadedHandler {
	return &DocumentUploadedHandler{
		sender:  sender,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *DocumentUploadedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.DocumentUploadedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal DocumentUploadedPayload", zap.Error(err))
		return fmt.Errorf("json_unmarshal_error: %w", err)
	}

	if !h.deduper.AcquireOnce(ctx, "document_uploaded", p.DocumentID+":"+p.TraceID) {
		return nil
	}

	err := h.sender.Deliver(ctx, notification.Notice{
		Event:     mqcontracts.RoutingDocumentUploaded,
		ProjectID: p.ProjectID,
		Title:     p.MilestoneRef,
		Recipient: model.ActorHomeowner,
		Message:   fmt.Sprintf("New document %q (%s) was added to your project", p.Name, p.Category),
	})
	if err != nil {
		h.logger.Warn("Notification dropped after failed delivery",
			zap.String("event", mqcontracts.RoutingDocumentUploaded),
			zap.String("document_id", p.DocumentID),
			zap.Error(err),
		)
	}
	return nil
}
