package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
)

// Channels. The homeowner gets in-app when they hold a marketplace account,
// email otherwise; the contractor always has an account.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Notice is a single counterparty notification derived from a committed
// milestone transition.
type Notice struct {
	Event       string
	MilestoneID int
	ProjectID   int
	Title       string
	Recipient   model.Actor
	Message     string
}

// InboxStore persists in-app notifications.
type InboxStore interface {
	Insert(ctx context.Context, userID, milestoneID int, event, message string) (int, error)
}

// EmailSender delivers a single email. Implementations attempt delivery once;
// retrying is the caller's concern (and the dispatcher deliberately has none).
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ProjectGetter resolves the recipient's identity and channel.
type ProjectGetter interface {
	GetByID(ctx context.Context, id int) (*model.Project, error)
}

// Sender delivers notifications to the counterparty of a transition. Delivery
// is attempted exactly once; a failure is logged, counted, and returned to the
// caller, which must never let it affect the originating transition.
type Sender struct {
	projects ProjectGetter
	inbox    InboxStore
	email    EmailSender
	logger   *zap.Logger
}

func NewSender(projects ProjectGetter, inbox InboxStore, email EmailSender, logger *zap.Logger) *Sender {
	return &Sender{
		projects: projects,
		inbox:    inbox,
		email:    email,
		logger:   logger,
	}
}

// Deliver routes the notice to the recipient's channel and attempts delivery
// once.
func (s *Sender) Deliver(ctx context.Context, n Notice) error {
	project, err := s.projects.GetByID(ctx, n.ProjectID)
	if err != nil {
		metrics.IncrementNotificationDelivery("none", "error")
		return fmt.Errorf("failed to resolve project for notification: %w", err)
	}

	channel, err := s.deliverTo(ctx, project, n)
	if err != nil {
		metrics.IncrementNotificationDelivery(channel, "error")
		s.logger.Warn("Notification delivery failed",
			zap.String("event", n.Event),
			zap.Int("milestone_id", n.MilestoneID),
			zap.String("recipient", string(n.Recipient)),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return err
	}

	metrics.IncrementNotificationDelivery(channel, "ok")
	s.logger.Info("Notification delivered",
		zap.String("event", n.Event),
		zap.Int("milestone_id", n.MilestoneID),
		zap.String("recipient", string(n.Recipient)),
		zap.String("channel", channel),
	)
	return nil
}

func (s *Sender) deliverTo(ctx context.Context, project *model.Project, n Notice) (string, error) {
	if n.Recipient == model.ActorContractor {
		_, err := s.inbox.Insert(ctx, project.ContractorUserID, n.MilestoneID, n.Event, n.Message)
		return ChannelInApp, err
	}

	if project.HomeownerHasAccount() {
		_, err := s.inbox.Insert(ctx, *project.HomeownerUserID, n.MilestoneID, n.Event, n.Message)
		return ChannelInApp, err
	}

	subject := fmt.Sprintf("Update on milestone %q", n.Title)
	return ChannelEmail, s.email.Send(ctx, project.HomeownerEmail, subject, n.Message)
}
