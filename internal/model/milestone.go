package model

import "time"

// Status is the closed set of milestone states. Stored as text in postgres
// and on the wire, but every command validates against the transition table
// below instead of trusting the raw string.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Actor identifies which side of the contract issued a command.
type Actor string

const (
	ActorContractor Actor = "contractor"
	ActorHomeowner  Actor = "homeowner"
)

func ParseActor(s string) (Actor, error) {
	switch Actor(s) {
	case ActorContractor, ActorHomeowner:
		return Actor(s), nil
	}
	return "", &ValidationError{Field: "actor", Reason: "must be contractor or homeowner"}
}

// Photo is contractor-attached completion evidence. Immutable once created;
// photos are only ever added, never edited or removed.
type Photo struct {
	ID          int       `json:"id"`
	MilestoneID int       `json:"milestone_id"`
	URL         string    `json:"url"`
	Caption     string    `json:"caption"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rejection records a disputed completion claim.
type Rejection struct {
	Actor  Actor     `json:"actor"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Milestone is a unit of contracted work with its own payment amount and
// independent completion/approval tracking.
type Milestone struct {
	ID                 int         `json:"id"`
	ProjectID          int         `json:"project_id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Amount             int64       `json:"amount"` // minor currency units
	DueDate            time.Time   `json:"due_date"`
	Order              int         `json:"order"`
	Status             Status      `json:"status"`
	ContractorApproved bool        `json:"contractor_approved"`
	HomeownerApproved  bool        `json:"homeowner_approved"`
	CompletedDate      *time.Time  `json:"completed_date,omitempty"`
	PaymentReleased    bool        `json:"payment_released"`
	TransactionRef     string      `json:"transaction_ref,omitempty"`
	PaidDate           *time.Time  `json:"paid_date,omitempty"`
	Rejections         []Rejection `json:"rejections,omitempty"`
	Photos             []Photo     `json:"photos,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// MilestoneSpec carries the caller-supplied fields for create and edit.
// Nil pointers on edit mean "leave unchanged".
type MilestoneSpec struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Amount      *int64     `json:"amount,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Order       *int       `json:"order,omitempty"`
}

// ReleaseEligible reports whether funds may move for this milestone:
// completed, mutually approved, and not already paid.
func (m *Milestone) ReleaseEligible() bool {
	return m.Status == StatusCompleted &&
		m.ContractorApproved &&
		m.HomeownerApproved &&
		!m.PaymentReleased
}

// CheckInvariants verifies the financial invariant: a released payment implies
// a completed, mutually approved milestone with a transaction ref.
func (m *Milestone) CheckInvariants() error {
	if m.PaymentReleased {
		if m.Status != StatusCompleted || !m.ContractorApproved || !m.HomeownerApproved {
			return ErrNotReady
		}
		if m.TransactionRef == "" {
			return ErrNotReady
		}
	}
	return nil
}

// ApplyEdit mutates caller-editable fields. Any edit invalidates the
// homeowner's prior agreement, and a completion that was never mutually
// approved regresses to pending. Paid and cancelled milestones reject edits.
func (m *Milestone) ApplyEdit(spec MilestoneSpec, now time.Time) error {
	if m.PaymentReleased {
		return ErrImmutable
	}
	if m.Status == StatusCancelled {
		return ErrImmutable
	}
	if spec.Title != nil {
		if *spec.Title == "" {
			return &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		m.Title = *spec.Title
	}
	if spec.Description != nil {
		m.Description = *spec.Description
	}
	if spec.Amount != nil {
		if *spec.Amount <= 0 {
			return &ValidationError{Field: "amount", Reason: "must be positive"}
		}
		m.Amount = *spec.Amount
	}
	if spec.DueDate != nil {
		m.DueDate = *spec.DueDate
	}
	if spec.Order != nil {
		m.Order = *spec.Order
	}

	m.HomeownerApproved = false
	if m.Status == StatusCompleted {
		// Completion was claimed but agreement is now void; back to pending.
		m.Status = StatusPending
	}
	m.UpdatedAt = now
	return nil
}

// MarkComplete claims completion. Legal only from pending or in_progress.
// The contractor's approval is implied by the claim; the homeowner's is not.
func (m *Milestone) MarkComplete(now time.Time) error {
	if m.PaymentReleased {
		return ErrImmutable
	}
	switch m.Status {
	case StatusPending, StatusInProgress:
	default:
		return ErrIllegalTransition
	}
	m.Status = StatusCompleted
	m.CompletedDate = &now
	m.ContractorApproved = true
	m.UpdatedAt = now
	return nil
}

// Approve sets the actor's approval flag. Legal in any non-terminal status and
// never changes the status by itself; release eligibility is observed by the
// payment gate, not encoded as a separate state.
func (m *Milestone) Approve(actor Actor, now time.Time) error {
	if m.PaymentReleased {
		return ErrImmutable
	}
	if m.Status.Terminal() {
		return ErrIllegalTransition
	}
	switch actor {
	case ActorContractor:
		m.ContractorApproved = true
	case ActorHomeowner:
		m.HomeownerApproved = true
	default:
		return &ValidationError{Field: "actor", Reason: "must be contractor or homeowner"}
	}
	m.UpdatedAt = now
	return nil
}

// Reject clears the actor's approval flag and records the dispute reason.
// The status is untouched.
func (m *Milestone) Reject(actor Actor, reason string, now time.Time) error {
	if m.PaymentReleased {
		return ErrImmutable
	}
	if m.Status.Terminal() {
		return ErrIllegalTransition
	}
	switch actor {
	case ActorContractor:
		m.ContractorApproved = false
	case ActorHomeowner:
		m.HomeownerApproved = false
	default:
		return &ValidationError{Field: "actor", Reason: "must be contractor or homeowner"}
	}
	m.Rejections = append(m.Rejections, Rejection{Actor: actor, Reason: reason, At: now})
	m.UpdatedAt = now
	return nil
}

// Cancel moves the milestone to its terminal state and clears both approval
// flags. Paid milestones can never be cancelled. CompletedDate is kept: it
// records that completion was once reached.
func (m *Milestone) Cancel(now time.Time) error {
	if m.PaymentReleased {
		return ErrImmutable
	}
	if m.Status == StatusCancelled {
		return ErrIllegalTransition
	}
	m.Status = StatusCancelled
	m.ContractorApproved = false
	m.HomeownerApproved = false
	m.UpdatedAt = now
	return nil
}

// AcceptsEvidence reports whether new photos may still be attached. Cancelled
// and paid milestones are frozen; photos attached before then survive.
func (m *Milestone) AcceptsEvidence() error {
	if m.PaymentReleased || m.Status == StatusCancelled {
		return ErrImmutable
	}
	return nil
}
