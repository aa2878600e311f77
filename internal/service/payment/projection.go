package payment

import (
	"context"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/milestone"
)

// ProjectionService computes the payment view of a project. Payment requests
// are never stored; they are recomputed from milestone state on every read,
// which is what keeps them consistent with the milestones by construction.
type ProjectionService struct {
	store     milestone.Store
	processor Processor
	logger    *zap.Logger
}

func NewProjectionService(store milestone.Store, processor Processor, log *zap.Logger) *ProjectionService {
	return &ProjectionService{
		store:     store,
		processor: processor,
		logger:    log,
	}
}

// ListPaymentRequests projects every milestone of the project into its
// payment view, plus the amount summary. For released milestones the
// processor is asked whether the transfer has settled; if that lookup fails
// the transfer is shown as paid rather than degrading the whole view.
func (s *ProjectionService) ListPaymentRequests(ctx context.Context, projectID int) ([]model.PaymentRequest, model.AmountSummary, error) {
	milestones, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, model.AmountSummary{}, err
	}

	requests := make([]model.PaymentRequest, 0, len(milestones))
	for i := range milestones {
		m := &milestones[i]
		settled := true
		if m.PaymentReleased && m.TransactionRef != "" {
			status, err := s.processor.QueryTransferStatus(ctx, m.TransactionRef)
			if err != nil {
				s.logger.Debug("Transfer status lookup failed",
					zap.Int("milestone_id", m.ID),
					zap.String("transaction_ref", m.TransactionRef),
					zap.Error(err),
				)
			} else {
				settled = transferSettled(status)
			}
		}
		requests = append(requests, model.PaymentRequestFor(m, settled))
	}

	return requests, model.SummarizeAmounts(milestones), nil
}

func transferSettled(status string) bool {
	switch status {
	case "succeeded", "paid", "settled":
		return true
	}
	return false
}
