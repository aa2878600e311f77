package model

import "time"

// Document categories. Derived progress images are owned by the
// reconciliation service; everything else is owned by its uploader.
const (
	CategoryProgressImage = "progress_image"
	CategoryContract      = "contract"
	CategoryInvoice       = "invoice"
	CategoryPermit        = "permit"
	CategoryOther         = "other"
)

type Document struct {
	ID                  string    `json:"id"`
	ProjectID           int       `json:"project_id"`
	Name                string    `json:"name"`
	Category            string    `json:"category"`
	Type                string    `json:"type"`
	URL                 string    `json:"url"`
	Size                int64     `json:"size"`
	UploadedAt          time.Time `json:"uploaded_at"`
	UploadedBy          string    `json:"uploaded_by"`
	// MilestoneRef links an upload to a milestone by title. Renaming a
	// milestone orphans previously linked uploads; kept as-is, see DESIGN.md.
	MilestoneRef        string    `json:"milestone_ref,omitempty"`
	SharedWithHomeowner bool      `json:"shared_with_homeowner"`
	HomeownerViewed     bool      `json:"homeowner_viewed"`
	IsDerived           bool      `json:"is_derived"`
}
