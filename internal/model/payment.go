package model

import (
	"fmt"
	"time"
)

// PaymentRequestStatus is the derived payment view of a milestone.
type PaymentRequestStatus string

const (
	PaymentNotReady            PaymentRequestStatus = "not_ready"
	PaymentPendingApproval     PaymentRequestStatus = "pending_approval"
	PaymentReadyForPayment     PaymentRequestStatus = "ready_for_payment"
	PaymentPendingConfirmation PaymentRequestStatus = "pending_confirmation"
	PaymentPaid                PaymentRequestStatus = "paid"
)

// PaymentRequest is a projection of a milestone plus its release history. It
// is recomputed on every read and never stored, so it cannot drift from the
// milestone that owns it.
type PaymentRequest struct {
	ID             string               `json:"id"`
	MilestoneID    int                  `json:"milestone_id"`
	Amount         int64                `json:"amount"`
	Status         PaymentRequestStatus `json:"status"`
	RequestDate    *time.Time           `json:"request_date,omitempty"`
	PaidDate       *time.Time           `json:"paid_date,omitempty"`
	TransactionRef string               `json:"transaction_ref,omitempty"`
}

// PaymentRequestFor computes the payment view of m. transferSettled only
// matters for released milestones: false means the processor has not yet
// confirmed the transfer, which surfaces as pending_confirmation.
func PaymentRequestFor(m *Milestone, transferSettled bool) PaymentRequest {
	pr := PaymentRequest{
		ID:          fmt.Sprintf("pr_%d", m.ID),
		MilestoneID: m.ID,
		Amount:      m.Amount,
	}
	switch {
	case m.PaymentReleased && transferSettled:
		pr.Status = PaymentPaid
		pr.PaidDate = m.PaidDate
		pr.TransactionRef = m.TransactionRef
	case m.PaymentReleased:
		pr.Status = PaymentPendingConfirmation
		pr.TransactionRef = m.TransactionRef
	case m.ReleaseEligible():
		pr.Status = PaymentReadyForPayment
		pr.RequestDate = m.CompletedDate
	case m.Status == StatusCompleted:
		pr.Status = PaymentPendingApproval
		pr.RequestDate = m.CompletedDate
	default:
		pr.Status = PaymentNotReady
	}
	return pr
}

// AmountSummary buckets milestone amounts by payment state. The three buckets
// always sum to the project total, cancelled milestones included (their
// amounts sit in NotReady until the contract is renegotiated).
type AmountSummary struct {
	Total    int64 `json:"total"`
	Paid     int64 `json:"paid"`
	Pending  int64 `json:"pending"`
	NotReady int64 `json:"not_ready"`
}

// SummarizeAmounts computes the per-project amount buckets from milestone
// state alone. Released-but-unsettled amounts count as pending.
func SummarizeAmounts(milestones []Milestone) AmountSummary {
	var s AmountSummary
	for i := range milestones {
		m := &milestones[i]
		s.Total += m.Amount
		switch {
		case m.PaymentReleased:
			s.Paid += m.Amount
		case m.ReleaseEligible() || m.Status == StatusCompleted:
			s.Pending += m.Amount
		default:
			s.NotReady += m.Amount
		}
	}
	return s
}
