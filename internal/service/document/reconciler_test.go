package document

import (
	"reflect"
	"testing"
	"time"

	"milestone-service/internal/model"
)

func photoMilestone(id int, photoIDs ...int) model.Milestone {
	m := model.Milestone{
		ID:        id,
		ProjectID: 7,
		Title:     "Framing",
		Status:    model.StatusInProgress,
	}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, pid := range photoIDs {
		m.Photos = append(m.Photos, model.Photo{
			ID:          pid,
			MilestoneID: id,
			URL:         "https://blobs.example/p.jpg",
			Caption:     "day shot",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	return m
}

func derivedOnly(docs []model.Document) []model.Document {
	var out []model.Document
	for _, d := range docs {
		if d.IsDerived {
			out = append(out, d)
		}
	}
	return out
}

func TestReconcileDerivedIDs(t *testing.T) {
	milestones := []model.Milestone{photoMilestone(3, 10, 11)}

	merged := Reconcile(milestones, nil)
	derived := derivedOnly(merged)
	if len(derived) != 2 {
		t.Fatalf("got %d derived documents, want 2", len(derived))
	}

	ids := map[string]bool{}
	for _, d := range derived {
		ids[d.ID] = true
		if d.Category != model.CategoryProgressImage {
			t.Errorf("category = %q, want progress_image", d.Category)
		}
		if !d.SharedWithHomeowner {
			t.Error("derived document not shared with homeowner")
		}
		if !d.IsDerived {
			t.Error("derived document not flagged as derived")
		}
	}
	if !ids["timeline_3_10"] || !ids["timeline_3_11"] {
		t.Errorf("derived ids = %v, want timeline_3_10 and timeline_3_11", ids)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	milestones := []model.Milestone{photoMilestone(3, 10, 11)}
	uploaded := []model.Document{{
		ID: "doc_1", ProjectID: 7, Name: "contract.pdf",
		Category: model.CategoryContract, UploadedAt: time.Now(),
	}}

	first := Reconcile(milestones, uploaded)
	second := Reconcile(milestones, uploaded)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two reconcile runs over unchanged inputs differ")
	}
}

// Adding a photo adds exactly one derived document; existing ones are
// untouched.
func TestReconcileNewPhotoAddsOne(t *testing.T) {
	m := photoMilestone(3, 10, 11)
	before := derivedOnly(Reconcile([]model.Milestone{m}, nil))

	m.Photos = append(m.Photos, model.Photo{
		ID: 12, MilestoneID: 3, URL: "https://blobs.example/p3.jpg",
		CreatedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	after := derivedOnly(Reconcile([]model.Milestone{m}, nil))

	if len(after) != len(before)+1 {
		t.Fatalf("got %d derived documents, want %d", len(after), len(before)+1)
	}
	byID := map[string]model.Document{}
	for _, d := range after {
		byID[d.ID] = d
	}
	for _, d := range before {
		got, ok := byID[d.ID]
		if !ok {
			t.Fatalf("derived document %s vanished after adding a photo", d.ID)
		}
		if !reflect.DeepEqual(got, d) {
			t.Errorf("derived document %s changed after adding a photo", d.ID)
		}
	}
	if _, ok := byID["timeline_3_12"]; !ok {
		t.Error("new photo did not produce timeline_3_12")
	}
}

// Cancellation does not retract derived documents.
func TestReconcileCancelledMilestoneKeepsEvidence(t *testing.T) {
	m := photoMilestone(3, 10, 11)
	if err := m.Cancel(time.Now()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	derived := derivedOnly(Reconcile([]model.Milestone{m}, nil))
	if len(derived) != 2 {
		t.Fatalf("got %d derived documents after cancel, want 2", len(derived))
	}
}

func TestReconcileExcludesUploadedProgressImages(t *testing.T) {
	uploaded := []model.Document{
		{ID: "doc_1", Name: "sneaky.jpg", Category: model.CategoryProgressImage},
		{ID: "doc_2", Name: "invoice.pdf", Category: model.CategoryInvoice},
	}

	merged := Reconcile(nil, uploaded)
	if len(merged) != 1 {
		t.Fatalf("got %d documents, want 1", len(merged))
	}
	if merged[0].ID != "doc_2" {
		t.Errorf("kept %s, want doc_2", merged[0].ID)
	}
}

func TestReconcileSortsByUploadTimeDescending(t *testing.T) {
	milestones := []model.Milestone{photoMilestone(3, 10)}
	uploaded := []model.Document{{
		ID: "doc_1", Name: "permit.pdf", Category: model.CategoryPermit,
		UploadedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	merged := Reconcile(milestones, uploaded)
	for i := 1; i < len(merged); i++ {
		if merged[i].UploadedAt.After(merged[i-1].UploadedAt) {
			t.Fatalf("documents not sorted by upload time descending at index %d", i)
		}
	}
	if merged[0].ID != "doc_1" {
		t.Errorf("newest document = %s, want doc_1", merged[0].ID)
	}
}

func TestHomeownerViewedMirrorsApproval(t *testing.T) {
	m := photoMilestone(3, 10)
	m.HomeownerApproved = true

	derived := derivedOnly(Reconcile([]model.Milestone{m}, nil))
	if !derived[0].HomeownerViewed {
		t.Error("derived document not marked viewed for approved milestone")
	}

	m.HomeownerApproved = false
	derived = derivedOnly(Reconcile([]model.Milestone{m}, nil))
	if derived[0].HomeownerViewed {
		t.Error("derived document marked viewed without homeowner approval")
	}
}

func TestAttachmentsLinkedByTitle(t *testing.T) {
	m := photoMilestone(3, 10)
	uploaded := []model.Document{
		{ID: "doc_1", Name: "spec.pdf", Category: model.CategoryOther, MilestoneRef: "Framing"},
		{ID: "doc_2", Name: "other.pdf", Category: model.CategoryOther, MilestoneRef: "Roofing"},
		{ID: "doc_3", Name: "unlinked.pdf", Category: model.CategoryOther},
	}

	got := Attachments(&m, uploaded)
	if len(got) != 1 || got[0].ID != "doc_1" {
		t.Fatalf("attachments = %v, want only doc_1", got)
	}
}
