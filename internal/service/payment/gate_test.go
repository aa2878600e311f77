package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/util"
)

// fakeStore keeps milestones in memory and applies Mutate the way the real
// repository does: fn runs against a copy, and the copy replaces the stored
// row only when fn returns nil.
type fakeStore struct {
	mu         sync.Mutex
	milestones map[int]*model.Milestone
	messages   []outbox.Message
}

func newFakeStore(ms ...*model.Milestone) *fakeStore {
	s := &fakeStore{milestones: make(map[int]*model.Milestone)}
	for _, m := range ms {
		s.milestones[m.ID] = m
	}
	return s
}

func (s *fakeStore) Create(ctx context.Context, m *model.Milestone, build func(id int) []outbox.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = len(s.milestones) + 1
	s.milestones[m.ID] = m
	if build != nil {
		s.messages = append(s.messages, build(m.ID)...)
	}
	return m.ID, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Milestone
	for i := 1; i <= len(s.milestones); i++ {
		if m, ok := s.milestones[i]; ok && m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) Mutate(ctx context.Context, id int, fn func(m *model.Milestone) ([]outbox.Message, error)) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	msgs, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	if err := cp.CheckInvariants(); err != nil {
		return nil, err
	}
	s.milestones[id] = &cp
	s.messages = append(s.messages, msgs...)
	out := cp
	return &out, nil
}

func (s *fakeStore) AttachPhoto(ctx context.Context, photo *model.Photo, msgs ...outbox.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	photo.ID = 1
	s.messages = append(s.messages, msgs...)
	return photo.ID, nil
}

type fakeProcessor struct {
	mu            sync.Mutex
	initiateCalls int
	initiateFn    func(req TransferRequest) (string, error)
	statusFn      func(ref string) (string, error)
}

func (p *fakeProcessor) InitiateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	p.mu.Lock()
	p.initiateCalls++
	n := p.initiateCalls
	fn := p.initiateFn
	p.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return fmt.Sprintf("txn_%d", n), nil
}

func (p *fakeProcessor) QueryTransferStatus(ctx context.Context, ref string) (string, error) {
	if p.statusFn != nil {
		return p.statusFn(ref)
	}
	return "succeeded", nil
}

func (p *fakeProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initiateCalls
}

type fakeProjects struct {
	project *model.Project
}

func (f *fakeProjects) GetByID(ctx context.Context, id int) (*model.Project, error) {
	if f.project == nil {
		return nil, model.ErrNotFound
	}
	return f.project, nil
}

func eligibleMilestone(id int) *model.Milestone {
	completed := time.Now().Add(-time.Hour)
	return &model.Milestone{
		ID:                 id,
		ProjectID:          7,
		Title:              "Rough plumbing",
		Amount:             250_000,
		Status:             model.StatusCompleted,
		ContractorApproved: true,
		HomeownerApproved:  true,
		CompletedDate:      &completed,
	}
}

func testProject() *model.Project {
	uid := 42
	return &model.Project{
		ID:                  7,
		ContractorAccountID: "acct_contractor",
		HomeownerAccountID:  "acct_homeowner",
		HomeownerUserID:     &uid,
		HomeownerEmail:      "owner@example.com",
		ContractorUserID:    9,
		PlatformFeeBps:      250,
	}
}

func newTestGate(store *fakeStore, proc *fakeProcessor) *Gate {
	return NewGate(store, &fakeProjects{project: testProject()}, proc, util.NewKeyedMutex(), zap.NewNop())
}

func TestReleaseHappyPath(t *testing.T) {
	store := newFakeStore(eligibleMilestone(1))
	proc := &fakeProcessor{}
	gate := newTestGate(store, proc)

	pr, err := gate.Release(context.Background(), 1)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if pr.Status != model.PaymentPaid {
		t.Errorf("status = %q, want %q", pr.Status, model.PaymentPaid)
	}
	if pr.TransactionRef == "" {
		t.Error("expected a transaction ref")
	}

	m, _ := store.GetByID(context.Background(), 1)
	if !m.PaymentReleased {
		t.Error("milestone not marked released")
	}
	if m.PaidDate == nil {
		t.Error("paid date not set")
	}
	if proc.calls() != 1 {
		t.Errorf("processor called %d times, want 1", proc.calls())
	}

	found := false
	for _, msg := range store.messages {
		if msg.RoutingKey == "payment.released" {
			found = true
		}
	}
	if !found {
		t.Error("payment.released event not emitted")
	}
}

func TestReleaseFeeComputation(t *testing.T) {
	store := newFakeStore(eligibleMilestone(1))
	proc := &fakeProcessor{}
	var captured TransferRequest
	proc.initiateFn = func(req TransferRequest) (string, error) {
		captured = req
		return "txn_1", nil
	}
	gate := newTestGate(store, proc)

	if _, err := gate.Release(context.Background(), 1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	// 250 bps of 250_000 = 6_250
	if captured.ApplicationFee != 6_250 {
		t.Errorf("application fee = %d, want 6250", captured.ApplicationFee)
	}
	if captured.PayerAccount != "acct_homeowner" || captured.PayeeAccount != "acct_contractor" {
		t.Errorf("accounts = %q -> %q, want homeowner -> contractor", captured.PayerAccount, captured.PayeeAccount)
	}
	if captured.IdempotencyKey != "milestone-1" {
		t.Errorf("idempotency key = %q", captured.IdempotencyKey)
	}
}

func TestReleaseNotReady(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(m *model.Milestone)
	}{
		{"not completed", func(m *model.Milestone) { m.Status = model.StatusInProgress; m.CompletedDate = nil }},
		{"homeowner not approved", func(m *model.Milestone) { m.HomeownerApproved = false }},
		{"contractor not approved", func(m *model.Milestone) { m.ContractorApproved = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := eligibleMilestone(1)
			tc.mutate(m)
			store := newFakeStore(m)
			proc := &fakeProcessor{}
			gate := newTestGate(store, proc)

			_, err := gate.Release(context.Background(), 1)
			if !errors.Is(err, model.ErrNotReady) {
				t.Fatalf("Release() error = %v, want ErrNotReady", err)
			}
			if proc.calls() != 0 {
				t.Errorf("processor called %d times, want 0", proc.calls())
			}
		})
	}
}

func TestReleaseSecondCallFails(t *testing.T) {
	store := newFakeStore(eligibleMilestone(1))
	proc := &fakeProcessor{}
	gate := newTestGate(store, proc)

	if _, err := gate.Release(context.Background(), 1); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	_, err := gate.Release(context.Background(), 1)
	if !errors.Is(err, model.ErrAlreadyReleased) {
		t.Fatalf("second Release() error = %v, want ErrAlreadyReleased", err)
	}
	if proc.calls() != 1 {
		t.Errorf("processor called %d times, want 1", proc.calls())
	}
}

// Two racing release calls must produce exactly one transfer.
func TestReleaseConcurrentAtMostOnce(t *testing.T) {
	store := newFakeStore(eligibleMilestone(1))
	proc := &fakeProcessor{}
	gate := newTestGate(store, proc)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gate.Release(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, model.ErrAlreadyReleased) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d releases succeeded, want 1", succeeded)
	}
	if proc.calls() != 1 {
		t.Errorf("processor called %d times, want 1", proc.calls())
	}
}

func TestReleaseProcessorFailureRollsBack(t *testing.T) {
	store := newFakeStore(eligibleMilestone(1))
	proc := &fakeProcessor{}
	proc.initiateFn = func(req TransferRequest) (string, error) {
		return "", errors.New("payment processor 5xx: 503")
	}
	gate := newTestGate(store, proc)

	_, err := gate.Release(context.Background(), 1)
	var procErr *model.PaymentProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("Release() error = %v, want PaymentProcessorError", err)
	}

	m, _ := store.GetByID(context.Background(), 1)
	if m.PaymentReleased {
		t.Fatal("milestone marked released despite processor failure")
	}
	if m.TransactionRef != "" {
		t.Errorf("transaction ref = %q, want empty", m.TransactionRef)
	}

	// Retry after the outage succeeds against unchanged state.
	proc.initiateFn = nil
	pr, err := gate.Release(context.Background(), 1)
	if err != nil {
		t.Fatalf("retry Release() error = %v", err)
	}
	if pr.Status != model.PaymentPaid {
		t.Errorf("retry status = %q, want paid", pr.Status)
	}
}

func TestReleaseCancelledMilestone(t *testing.T) {
	m := eligibleMilestone(1)
	m.Status = model.StatusCancelled
	m.ContractorApproved = false
	m.HomeownerApproved = false
	store := newFakeStore(m)
	gate := newTestGate(store, &fakeProcessor{})

	_, err := gate.Release(context.Background(), 1)
	if !errors.Is(err, model.ErrNotReady) {
		t.Fatalf("Release() error = %v, want ErrNotReady", err)
	}
}
