package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"milestone-service/pkg/mq"
)

// ReplayService re-publishes outbox events on operator demand, for events
// that exhausted their retries or need to be re-driven after a consumer bug.
type ReplayService struct {
	repo      *Repository
	publisher *mq.Publisher
}

func NewReplayService(repo *Repository, publisher *mq.Publisher) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
	}
}

// ReplayEvent publishes a single event by id and marks it sent.
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	ctx = extractTraceIDFromPayload(ctx, event.Payload)
	if err := s.publisher.PublishWithContext(ctx, event.RoutingKey, payload); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return s.repo.MarkAsSent(ctx, eventID)
}

// ReplayFailedEvents resets parked events to pending and lets the dispatcher
// pick them up on its next tick. Returns the number of events re-queued.
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.repo.ReplayEvent(ctx, event.ID); err != nil {
			return replayed, fmt.Errorf("failed to replay event %d: %w", event.ID, err)
		}
		replayed++
	}

	return replayed, nil
}
