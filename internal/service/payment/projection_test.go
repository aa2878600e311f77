package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/model"
)

func TestListPaymentRequests(t *testing.T) {
	completed := time.Now().Add(-2 * time.Hour)
	paid := time.Now().Add(-time.Hour)

	store := newFakeStore(
		&model.Milestone{ID: 1, ProjectID: 7, Amount: 100_000, Status: model.StatusPending, ContractorApproved: true},
		&model.Milestone{ID: 2, ProjectID: 7, Amount: 200_000, Status: model.StatusCompleted, ContractorApproved: true, CompletedDate: &completed},
		&model.Milestone{ID: 3, ProjectID: 7, Amount: 300_000, Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true, CompletedDate: &completed},
		&model.Milestone{ID: 4, ProjectID: 7, Amount: 400_000, Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true, CompletedDate: &completed, PaymentReleased: true, TransactionRef: "txn_4", PaidDate: &paid},
	)
	svc := NewProjectionService(store, &fakeProcessor{}, zap.NewNop())

	requests, summary, err := svc.ListPaymentRequests(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListPaymentRequests() error = %v", err)
	}
	if len(requests) != 4 {
		t.Fatalf("got %d requests, want 4", len(requests))
	}

	wantStatus := map[int]model.PaymentRequestStatus{
		1: model.PaymentNotReady,
		2: model.PaymentPendingApproval,
		3: model.PaymentReadyForPayment,
		4: model.PaymentPaid,
	}
	for _, pr := range requests {
		if pr.Status != wantStatus[pr.MilestoneID] {
			t.Errorf("milestone %d status = %q, want %q", pr.MilestoneID, pr.Status, wantStatus[pr.MilestoneID])
		}
		if want := "pr_" + string(rune('0'+pr.MilestoneID)); pr.ID != want {
			t.Errorf("milestone %d id = %q, want %q", pr.MilestoneID, pr.ID, want)
		}
	}

	if summary.Total != 1_000_000 {
		t.Errorf("total = %d, want 1000000", summary.Total)
	}
	if summary.Paid != 400_000 {
		t.Errorf("paid = %d, want 400000", summary.Paid)
	}
	if summary.Pending != 500_000 {
		t.Errorf("pending = %d, want 500000", summary.Pending)
	}
	if summary.NotReady != 100_000 {
		t.Errorf("not_ready = %d, want 100000", summary.NotReady)
	}
	if summary.Paid+summary.Pending+summary.NotReady != summary.Total {
		t.Error("buckets do not sum to total")
	}
}

func TestListPaymentRequestsUnsettledTransfer(t *testing.T) {
	completed := time.Now().Add(-time.Hour)
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Amount: 100_000,
		Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true,
		CompletedDate: &completed, PaymentReleased: true, TransactionRef: "txn_1",
	})
	proc := &fakeProcessor{statusFn: func(ref string) (string, error) { return "processing", nil }}
	svc := NewProjectionService(store, proc, zap.NewNop())

	requests, _, err := svc.ListPaymentRequests(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListPaymentRequests() error = %v", err)
	}
	if requests[0].Status != model.PaymentPendingConfirmation {
		t.Errorf("status = %q, want pending_confirmation", requests[0].Status)
	}
}

// A processor outage must not hide completed payments from the homeowner.
func TestListPaymentRequestsStatusLookupFailure(t *testing.T) {
	completed := time.Now().Add(-time.Hour)
	store := newFakeStore(&model.Milestone{
		ID: 1, ProjectID: 7, Amount: 100_000,
		Status: model.StatusCompleted, ContractorApproved: true, HomeownerApproved: true,
		CompletedDate: &completed, PaymentReleased: true, TransactionRef: "txn_1",
	})
	proc := &fakeProcessor{statusFn: func(ref string) (string, error) { return "", errors.New("timeout") }}
	svc := NewProjectionService(store, proc, zap.NewNop())

	requests, _, err := svc.ListPaymentRequests(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListPaymentRequests() error = %v", err)
	}
	if requests[0].Status != model.PaymentPaid {
		t.Errorf("status = %q, want paid when lookup fails", requests[0].Status)
	}
}
