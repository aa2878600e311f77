package milestone

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/trace"
	"milestone-service/pkg/util"
)

// Store is the canonical milestone store. Mutate must run fn under per-
// milestone exclusion and commit the returned events atomically with the
// state change. Create calls build with the generated id so the created
// event can reference it; the returned messages commit in the same
// transaction as the insert.
type Store interface {
	Create(ctx context.Context, m *model.Milestone, build func(id int) []outbox.Message) (int, error)
	GetByID(ctx context.Context, id int) (*model.Milestone, error)
	ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error)
	Mutate(ctx context.Context, id int, fn func(m *model.Milestone) ([]outbox.Message, error)) (*model.Milestone, error)
	AttachPhoto(ctx context.Context, photo *model.Photo, msgs ...outbox.Message) (int, error)
}

// BlobStore uploads photo bytes and returns a public URL.
type BlobStore interface {
	PutObject(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Service executes milestone commands. All mutations on the same milestone
// are additionally serialized through the shared keyed mutex, so the window
// between a row lock and in-process work is covered too.
type Service struct {
	store  Store
	blobs  BlobStore
	locks  *util.KeyedMutex
	logger *zap.Logger
}

func NewService(store Store, blobs BlobStore, locks *util.KeyedMutex, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		locks:  locks,
		logger: log,
	}
}

// Create validates the spec and inserts a new milestone. The creator is the
// contractor proposing the work, so their approval flag starts true; the
// homeowner has agreed to nothing yet.
func (s *Service) Create(ctx context.Context, projectID int, spec model.MilestoneSpec) (*model.Milestone, error) {
	if spec.Title == nil || *spec.Title == "" {
		return nil, &model.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if spec.Amount == nil || *spec.Amount <= 0 {
		return nil, &model.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	m := &model.Milestone{
		ProjectID:          projectID,
		Title:              *spec.Title,
		Amount:             *spec.Amount,
		Status:             model.StatusPending,
		ContractorApproved: true,
		HomeownerApproved:  false,
	}
	if spec.Description != nil {
		m.Description = *spec.Description
	}
	if spec.DueDate != nil {
		m.DueDate = *spec.DueDate
	}
	if spec.Order != nil {
		m.Order = *spec.Order
	}

	id, err := s.store.Create(ctx, m, func(id int) []outbox.Message {
		return []outbox.Message{
			outbox.MilestoneMessage(id, mqcontracts.RoutingMilestoneCreated, mqcontracts.MilestoneCreatedPayload{
				MilestoneID: id,
				ProjectID:   projectID,
				Title:       m.Title,
				Amount:      m.Amount,
				DueDate:     m.DueDate.Format("2006-01-02"),
				TraceID:     trace.FromContext(ctx),
			}),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone: %w", err)
	}

	metrics.IncrementMilestoneTransition("create")
	logger.WithTrace(ctx, s.logger).Info("Milestone created",
		zap.Int("milestone_id", id),
		zap.Int("project_id", projectID),
		zap.Int64("amount", m.Amount),
	)
	return m, nil
}

// Edit applies field changes. The edit invalidates the homeowner's prior
// agreement regardless of which fields changed; paid milestones refuse.
func (s *Service) Edit(ctx context.Context, id int, spec model.MilestoneSpec) (*model.Milestone, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	changed := changedFields(spec)

	m, err := s.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if err := m.ApplyEdit(spec, time.Now()); err != nil {
			return nil, err
		}
		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingMilestoneUpdated, mqcontracts.MilestoneUpdatedPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Title:       m.Title,
				Changed:     changed,
				TraceID:     trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneTransition("edit")
	logger.WithTrace(ctx, s.logger).Info("Milestone edited",
		zap.Int("milestone_id", id),
		zap.Strings("changed", changed),
	)
	return m, nil
}

// MarkComplete claims completion on behalf of the contractor.
func (s *Service) MarkComplete(ctx context.Context, id int) (*model.Milestone, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	m, err := s.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if err := m.MarkComplete(time.Now()); err != nil {
			return nil, err
		}
		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingMilestoneCompleted, mqcontracts.MilestoneCompletedPayload{
				MilestoneID:   m.ID,
				ProjectID:     m.ProjectID,
				Title:         m.Title,
				CompletedDate: *m.CompletedDate,
				TraceID:       trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneTransition("complete")
	logger.WithTrace(ctx, s.logger).Info("Milestone marked complete",
		zap.Int("milestone_id", id),
	)
	return m, nil
}

// Approve records the actor's confirmation.
func (s *Service) Approve(ctx context.Context, id int, actor model.Actor) (*model.Milestone, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	m, err := s.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if err := m.Approve(actor, time.Now()); err != nil {
			return nil, err
		}
		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingMilestoneApproval, mqcontracts.MilestoneApprovalPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Title:       m.Title,
				Actor:       string(actor),
				Approved:    true,
				TraceID:     trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneTransition("approve")
	logger.WithTrace(ctx, s.logger).Info("Milestone approved",
		zap.Int("milestone_id", id),
		zap.String("actor", string(actor)),
		zap.Bool("release_eligible", m.ReleaseEligible()),
	)
	return m, nil
}

// Reject withdraws the actor's confirmation and records the dispute.
func (s *Service) Reject(ctx context.Context, id int, actor model.Actor, reason string) (*model.Milestone, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	m, err := s.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if err := m.Reject(actor, reason, time.Now()); err != nil {
			return nil, err
		}
		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingMilestoneApproval, mqcontracts.MilestoneApprovalPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Title:       m.Title,
				Actor:       string(actor),
				Approved:    false,
				Reason:      reason,
				TraceID:     trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneTransition("reject")
	logger.WithTrace(ctx, s.logger).Info("Milestone rejected",
		zap.Int("milestone_id", id),
		zap.String("actor", string(actor)),
		zap.String("reason", reason),
	)
	return m, nil
}

// Cancel terminates the milestone. Photos attached so far stay: evidence of
// historical work survives cancellation.
func (s *Service) Cancel(ctx context.Context, id int) (*model.Milestone, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	m, err := s.store.Mutate(ctx, id, func(m *model.Milestone) ([]outbox.Message, error) {
		if err := m.Cancel(time.Now()); err != nil {
			return nil, err
		}
		return []outbox.Message{
			outbox.MilestoneMessage(m.ID, mqcontracts.RoutingMilestoneCancelled, mqcontracts.MilestoneCancelledPayload{
				MilestoneID: m.ID,
				ProjectID:   m.ProjectID,
				Title:       m.Title,
				TraceID:     trace.FromContext(ctx),
			}),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementMilestoneTransition("cancel")
	logger.WithTrace(ctx, s.logger).Info("Milestone cancelled",
		zap.Int("milestone_id", id),
	)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id int) (*model.Milestone, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	return s.store.ListByProject(ctx, projectID)
}

// AttachPhoto stores photo bytes in the blob store (when given) and appends
// the evidence record. Passing a URL skips the upload. Cancelled and paid
// milestones refuse new evidence; the lock keeps a concurrent cancel from
// slipping in between the check and the insert.
func (s *Service) AttachPhoto(ctx context.Context, milestoneID int, data []byte, contentType, url, caption string) (*model.Photo, error) {
	s.locks.Lock(milestoneID)
	defer s.locks.Unlock(milestoneID)

	m, err := s.store.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := m.AcceptsEvidence(); err != nil {
		return nil, err
	}

	if url == "" {
		if len(data) == 0 {
			return nil, &model.ValidationError{Field: "photo", Reason: "either bytes or url is required"}
		}
		name := fmt.Sprintf("milestones/%d/photos/%d", milestoneID, time.Now().UnixNano())
		url, err = s.blobs.PutObject(ctx, name, data, contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store photo: %w", err)
		}
	}

	photo := &model.Photo{
		MilestoneID: milestoneID,
		URL:         url,
		Caption:     caption,
	}
	if _, err := s.store.AttachPhoto(ctx, photo); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Photo attached to milestone",
		zap.Int("milestone_id", milestoneID),
		zap.Int("photo_id", photo.ID),
		zap.Int("project_id", m.ProjectID),
	)
	return photo, nil
}

func changedFields(spec model.MilestoneSpec) []string {
	var changed []string
	if spec.Title != nil {
		changed = append(changed, "title")
	}
	if spec.Description != nil {
		changed = append(changed, "description")
	}
	if spec.Amount != nil {
		changed = append(changed, "amount")
	}
	if spec.DueDate != nil {
		changed = append(changed, "due_date")
	}
	if spec.Order != nil {
		changed = append(changed, "order")
	}
	return changed
}
