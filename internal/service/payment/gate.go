package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/milestone"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/trace"
	"milestone-service/pkg/util"
)

// ProjectGetter resolves the payer/payee accounts and fee for a project.
type ProjectGetter interface {
	GetByID(ctx context.Context, id int) (*model.Project, error)
}

// Gate decides whether funds may move for a milestone and performs the
// release. The eligibility check happens at commit time, under the same
// per-milestone exclusion every other mutation uses, so two racing release
// calls cannot both pass the guard.
type Gate struct {
	store     milestone.Store
	projects  ProjectGetter
	processor Processor
	locks     *util.KeyedMutex
	logger    *zap.Logger
}

func NewGate(store milestone.Store, projects ProjectGetter, processor Processor, locks *util.KeyedMutex, log *zap.Logger) *Gate {
	return &Gate{
		store:     store,
		projects:  projects,
		processor: processor,
		locks:     locks,
		logger:    log,
	}
}

// CanRelease reports release eligibility from milestone state alone.
func (g *Gate) CanRelease(m *model.Milestone) bool {
	return m.ReleaseEligible()
}

// Release moves the milestone's funds. The milestone row stays locked for
// the duration of the processor call and is only mutated once that call has
// succeeded; a processor failure rolls back to the pre-release state, so the
// caller may retry safely. A second release on the same milestone fails
// without reaching the processor.
func (g *Gate) Release(ctx context.Context, id int) (*model.PaymentRequest, error) {
	g.locks.Lock(id)
	defer g.locks.Unlock(id)

	log := logger.WithTrace(ctx, g.logger)

	m, err := g.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if m.PaymentReleased {
			metrics.IncrementPaymentRelease("already_released")
			return nil, model.ErrAlreadyReleased
		}
		if !m.ReleaseEligible() {
			metrics.IncrementPaymentRelease("not_ready")
			return nil, model.ErrNotReady
		}

		project, err := g.projects.GetByID(ctx, m.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve project accounts: %w", err)
		}

		fee := m.Amount * int64(project.PlatformFeeBps) / 10000
		ref, err := g.processor.InitiateTransfer(ctx, TransferRequest{
			Amount:         m.Amount,
			PayerAccount:   project.HomeownerAccountID,
			PayeeAccount:   project.ContractorAccountID,
			ApplicationFee: fee,
			// The milestone id keys idempotency on the processor side too:
			// a retried initiate after a lost response cannot double-pay.
			IdempotencyKey: fmt.Sprintf("milestone-%d", m.ID),
		})
		if err != nil {
			metrics.IncrementPaymentRelease("processor_error")
			log.Error("Payment processor call failed",
				zap.Int("milestone_id", m.ID),
				zap.Error(err),
			)
			return nil, &model.PaymentProcessorError{Err: err}
		}

		now := time.Now()
		m.PaymentReleased = true
		m.TransactionRef = ref
		m.PaidDate = &now
		m.UpdatedAt = now

		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingPaymentReleased, mqcontracts.PaymentReleasedPayload{
				MilestoneID:    m.ID,
				ProjectID:      m.ProjectID,
				Title:          m.Title,
				Amount:         m.Amount,
				TransactionRef: ref,
				PaidDate:       now,
				TraceID:        trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementPaymentRelease("released")
	log.Info("Payment released",
		zap.Int("milestone_id", m.ID),
		zap.Int64("amount", m.Amount),
		zap.String("transaction_ref", m.TransactionRef),
	)

	pr := model.PaymentRequestFor(m, true)
	return &pr, nil
}
