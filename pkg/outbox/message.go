package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Message is a not-yet-persisted domain event. Command code builds Messages;
// the repository writes them into the outbox inside the same transaction as
// the state change.
type Message struct {
	AggregateType string
	AggregateID   *int64
	RoutingKey    string
	Payload       any
}

// MilestoneMessage builds a Message for a milestone aggregate.
func MilestoneMessage(milestoneID int, routingKey string, payload any) Message {
	id := int64(milestoneID)
	return Message{
		AggregateType: "milestone",
		AggregateID:   &id,
		RoutingKey:    routingKey,
		Payload:       payload,
	}
}

// DocumentMessage builds a Message for a document aggregate.
func DocumentMessage(routingKey string, payload any) Message {
	return Message{
		AggregateType: "document",
		RoutingKey:    routingKey,
		Payload:       payload,
	}
}

// InsertMessagesInTx writes msgs into the outbox inside the caller's
// transaction.
func InsertMessagesInTx(ctx context.Context, tx pgx.Tx, repo *Repository, msgs []Message) error {
	for _, msg := range msgs {
		if err := InsertEventInTx(ctx, tx, repo, msg.AggregateType, msg.AggregateID, msg.RoutingKey, msg.Payload); err != nil {
			return err
		}
	}
	return nil
}
