package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/service/notification"
	"milestone-service/pkg/util"
)

type fakeInbox struct {
	inserts []int
	err     error
}

func (f *fakeInbox) Insert(ctx context.Context, userID, milestoneID int, event, message string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserts = append(f.inserts, userID)
	return len(f.inserts), nil
}

type fakeEmail struct {
	sent int
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent++
	return nil
}

type fakeProjects struct{ project *model.Project }

func (f *fakeProjects) GetByID(ctx context.Context, id int) (*model.Project, error) {
	if f.project == nil {
		return nil, model.ErrNotFound
	}
	return f.project, nil
}

func newTestDeduper(t *testing.T) *util.Deduper {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return util.NewDeduper(rdb, time.Hour, zap.NewNop())
}

func testSender(inbox *fakeInbox, email *fakeEmail) *notification.Sender {
	uid := 42
	project := &model.Project{
		ID:               7,
		HomeownerUserID:  &uid,
		HomeownerEmail:   "owner@example.com",
		ContractorUserID: 9,
	}
	return notification.NewSender(&fakeProjects{project: project}, inbox, email, zap.NewNop())
}

func approvalPayload(t *testing.T, actor string, traceID string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.MilestoneApprovalPayload{
		MilestoneID: 3,
		ProjectID:   7,
		Title:       "Framing",
		Actor:       actor,
		Approved:    true,
		TraceID:     traceID,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestApprovalNotifiesCounterparty(t *testing.T) {
	inbox := &fakeInbox{}
	h := NewMilestoneApprovalHandler(testSender(inbox, &fakeEmail{}), newTestDeduper(t), zap.NewNop())

	if err := h.Handle(context.Background(), approvalPayload(t, "homeowner", "t1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(inbox.inserts) != 1 || inbox.inserts[0] != 9 {
		t.Errorf("inbox inserts = %v, want contractor user 9", inbox.inserts)
	}
}

// A redelivered event must not notify twice.
func TestApprovalDeduplicatesRedelivery(t *testing.T) {
	inbox := &fakeInbox{}
	h := NewMilestoneApprovalHandler(testSender(inbox, &fakeEmail{}), newTestDeduper(t), zap.NewNop())

	raw := approvalPayload(t, "homeowner", "t1")
	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), raw); err != nil {
			t.Fatalf("Handle() #%d error = %v", i, err)
		}
	}
	if len(inbox.inserts) != 1 {
		t.Errorf("delivered %d times, want 1", len(inbox.inserts))
	}
}

// Delivery failures are swallowed: the handler acks so the broker never
// retries a notification.
func TestApprovalDeliveryFailureDoesNotRequeue(t *testing.T) {
	inbox := &fakeInbox{err: errors.New("inbox down")}
	h := NewMilestoneApprovalHandler(testSender(inbox, &fakeEmail{}), newTestDeduper(t), zap.NewNop())

	if err := h.Handle(context.Background(), approvalPayload(t, "contractor", "t2")); err != nil {
		t.Fatalf("Handle() error = %v, want nil after failed delivery", err)
	}
}

func TestApprovalBadPayloadIsRejected(t *testing.T) {
	h := NewMilestoneApprovalHandler(testSender(&fakeInbox{}, &fakeEmail{}), newTestDeduper(t), zap.NewNop())

	if err := h.Handle(context.Background(), json.RawMessage(`{not json`)); err == nil {
		t.Fatal("Handle() error = nil, want unmarshal error for DLQ routing")
	}
}
