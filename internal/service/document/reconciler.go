package document

import (
	"fmt"
	"sort"

	"milestone-service/internal/model"
)

// Reconcile derives the progress-image document set from milestone photos and
// merges it with the uploaded documents. Pure: same inputs produce the same
// merged set, so the routine can run on every read without coordination.
//
// Derived document ids are a deterministic function of (milestoneId, photoId),
// which is what makes reconciliation idempotent: re-running with unchanged
// inputs reproduces identical entries, and a newly attached photo only adds
// one new entry.
//
// Cancelled milestones still contribute their photos. Evidence of work that
// was actually performed must not vanish with the milestone.
func Reconcile(milestones []model.Milestone, uploaded []model.Document) []model.Document {
	merged := make([]model.Document, 0, len(uploaded))

	for i := range milestones {
		m := &milestones[i]
		for _, photo := range m.Photos {
			merged = append(merged, deriveFromPhoto(m, photo))
		}
	}

	// Uploaded progress images would collide with the derived set; everything
	// else passes through untouched.
	for _, d := range uploaded {
		if d.Category == model.CategoryProgressImage {
			continue
		}
		merged = append(merged, d)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UploadedAt.After(merged[j].UploadedAt)
	})
	return merged
}

func deriveFromPhoto(m *model.Milestone, photo model.Photo) model.Document {
	name := photo.Caption
	if name == "" {
		name = fmt.Sprintf("%s - progress photo", m.Title)
	}
	uploadedAt := photo.CreatedAt
	if uploadedAt.IsZero() {
		uploadedAt = m.UpdatedAt
	}
	return model.Document{
		ID:         fmt.Sprintf("timeline_%d_%d", m.ID, photo.ID),
		ProjectID:  m.ProjectID,
		Name:       name,
		Category:   model.CategoryProgressImage,
		Type:       "image",
		URL:        photo.URL,
		UploadedAt: uploadedAt,
		UploadedBy: string(model.ActorContractor),
		// Derived documents are always visible to the homeowner; "viewed"
		// mirrors their approval flag as a proxy signal.
		MilestoneRef:        m.Title,
		SharedWithHomeowner: true,
		HomeownerViewed:     m.HomeownerApproved,
		IsDerived:           true,
	}
}

// Attachments returns the uploaded documents linked to a milestone. Linkage
// is by title text; see DESIGN.md for why this survives as-is.
func Attachments(m *model.Milestone, uploaded []model.Document) []model.Document {
	var out []model.Document
	for _, d := range uploaded {
		if d.IsDerived || d.Category == model.CategoryProgressImage {
			continue
		}
		if d.MilestoneRef != "" && d.MilestoneRef == m.Title {
			out = append(out, d)
		}
	}
	return out
}
