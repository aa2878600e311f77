package mq

import "time"

// Routing keys for committed milestone transitions.
const (
	RoutingMilestoneCreated   = "milestone.created"
	RoutingMilestoneUpdated   = "milestone.updated"
	RoutingMilestoneCompleted = "milestone.completed"
	RoutingMilestoneApproval  = "milestone.approval"
	RoutingMilestoneCancelled = "milestone.cancelled"
	RoutingPaymentReleased    = "payment.released"
	RoutingDocumentUploaded   = "document.uploaded"
)

type MilestoneCreatedPayload struct {
	MilestoneID int    `json:"milestone_id"`
	ProjectID   int    `json:"project_id"`
	Title       string `json:"title"`
	Amount      int64  `json:"amount"`
	DueDate     string `json:"due_date"` // YYYY-MM-DD
	TraceID     string `json:"trace_id,omitempty"`
}

type MilestoneUpdatedPayload struct {
	MilestoneID int      `json:"milestone_id"`
	ProjectID   int      `json:"project_id"`
	Title       string   `json:"title"`
	Changed     []string `json:"changed"`
	TraceID     string   `json:"trace_id,omitempty"`
}

type MilestoneCompletedPayload struct {
	MilestoneID   int       `json:"milestone_id"`
	ProjectID     int       `json:"project_id"`
	Title         string    `json:"title"`
	CompletedDate time.Time `json:"completed_date"`
	TraceID       string    `json:"trace_id,omitempty"`
}

type MilestoneApprovalPayload struct {
	MilestoneID int    `json:"milestone_id"`
	ProjectID   int    `json:"project_id"`
	Title       string `json:"title"`
	Actor       string `json:"actor"`
	Approved    bool   `json:"approved"` // false = rejection
	Reason      string `json:"reason,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

type MilestoneCancelledPayload struct {
	MilestoneID int    `json:"milestone_id"`
	ProjectID   int    `json:"project_id"`
	Title       string `json:"title"`
	TraceID     string `json:"trace_id,omitempty"`
}

type PaymentReleasedPayload struct {
	MilestoneID    int       `json:"milestone_id"`
	ProjectID      int       `json:"project_id"`
	Title          string    `json:"title"`
	Amount         int64     `json:"amount"`
	TransactionRef string    `json:"transaction_ref"`
	PaidDate       time.Time `json:"paid_date"`
	TraceID        string    `json:"trace_id,omitempty"`
}

type DocumentUploadedPayload struct {
	DocumentID   string `json:"document_id"`
	ProjectID    int    `json:"project_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	MilestoneRef string `json:"milestone_ref,omitempty"`
	TraceID      string `json:"trace_id,omitempty"`
}
