package document

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/outbox"
)

type fakeUploadStore struct {
	mu       sync.Mutex
	docs     map[string]*model.Document
	messages []outbox.Message
}

func newFakeUploadStore() *fakeUploadStore {
	return &fakeUploadStore{docs: make(map[string]*model.Document)}
}

func (s *fakeUploadStore) Insert(ctx context.Context, d *model.Document, msgs ...outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *fakeUploadStore) ListByProject(ctx context.Context, projectID int) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeUploadStore) MarkViewedByHomeowner(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[documentID]
	if !ok {
		return model.ErrNotFound
	}
	d.HomeownerViewed = true
	return nil
}

func (s *fakeUploadStore) GetByID(ctx context.Context, documentID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[documentID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

type fakeMilestones struct {
	milestones []model.Milestone
}

func (f *fakeMilestones) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	return f.milestones, nil
}

type fakeBlobs struct {
	puts int
	err  error
}

func (f *fakeBlobs) PutObject(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	f.puts++
	if f.err != nil {
		return "", f.err
	}
	return "https://blobs.example/" + name, nil
}

func TestUpload(t *testing.T) {
	store := newFakeUploadStore()
	blobs := &fakeBlobs{}
	svc := NewService(store, &fakeMilestones{}, blobs, zap.NewNop())

	d, err := svc.Upload(context.Background(), 7, UploadInput{
		Name:        "contract.pdf",
		Category:    model.CategoryContract,
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
		UploadedBy:  "contractor",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if blobs.puts != 1 {
		t.Errorf("blob store called %d times, want 1", blobs.puts)
	}
	if d.URL == "" {
		t.Error("document has no URL")
	}
	if d.IsDerived {
		t.Error("uploaded document flagged as derived")
	}

	found := false
	for _, msg := range store.messages {
		if msg.RoutingKey == "document.uploaded" {
			found = true
		}
	}
	if !found {
		t.Error("document.uploaded event not emitted")
	}
}

func TestUploadValidation(t *testing.T) {
	svc := NewService(newFakeUploadStore(), &fakeMilestones{}, &fakeBlobs{}, zap.NewNop())

	cases := []struct {
		name string
		in   UploadInput
	}{
		{"empty name", UploadInput{Category: model.CategoryOther, Data: []byte("x")}},
		{"reserved category", UploadInput{Name: "a.jpg", Category: model.CategoryProgressImage, Data: []byte("x")}},
		{"no bytes and no url", UploadInput{Name: "a.pdf", Category: model.CategoryOther}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), 7, tc.in)
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Upload() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestUploadWithURLSkipsBlobStore(t *testing.T) {
	blobs := &fakeBlobs{}
	svc := NewService(newFakeUploadStore(), &fakeMilestones{}, blobs, zap.NewNop())

	d, err := svc.Upload(context.Background(), 7, UploadInput{
		Name:     "permit.pdf",
		Category: model.CategoryPermit,
		URL:      "https://city.example/permit.pdf",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if blobs.puts != 0 {
		t.Errorf("blob store called %d times, want 0", blobs.puts)
	}
	if d.URL != "https://city.example/permit.pdf" {
		t.Errorf("url = %q", d.URL)
	}
}

func TestListMergesDerivedAndUploaded(t *testing.T) {
	store := newFakeUploadStore()
	milestones := &fakeMilestones{milestones: []model.Milestone{photoMilestone(3, 10, 11)}}
	svc := NewService(store, milestones, &fakeBlobs{}, zap.NewNop())

	if _, err := svc.Upload(context.Background(), 7, UploadInput{
		Name:     "invoice.pdf",
		Category: model.CategoryInvoice,
		Data:     []byte("x"),
	}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	docs, err := svc.List(context.Background(), 7)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3 (2 derived + 1 uploaded)", len(docs))
	}
	derived := 0
	for _, d := range docs {
		if d.IsDerived {
			derived++
		}
	}
	if derived != 2 {
		t.Errorf("got %d derived documents, want 2", derived)
	}
}
