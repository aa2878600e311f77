package document

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/trace"
)

// UploadStore persists uploaded documents. Derived documents never pass
// through it.
type UploadStore interface {
	Insert(ctx context.Context, d *model.Document, msgs ...outbox.Message) error
	ListByProject(ctx context.Context, projectID int) ([]model.Document, error)
	MarkViewedByHomeowner(ctx context.Context, documentID string) error
	GetByID(ctx context.Context, documentID string) (*model.Document, error)
}

// MilestoneLister supplies the milestones whose photos feed reconciliation.
type MilestoneLister interface {
	ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error)
}

// BlobStore uploads document bytes and returns a public URL.
type BlobStore interface {
	PutObject(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type UploadInput struct {
	Name                string
	Category            string
	ContentType         string
	Data                []byte
	URL                 string
	UploadedBy          string
	MilestoneRef        string
	SharedWithHomeowner bool
}

// Service exposes the document view of a project: uploads go to the store,
// reads run reconciliation over milestones plus uploads.
type Service struct {
	store      UploadStore
	milestones MilestoneLister
	blobs      BlobStore
	logger     *zap.Logger
}

func NewService(store UploadStore, milestones MilestoneLister, blobs BlobStore, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		milestones: milestones,
		blobs:      blobs,
		logger:     log,
	}
}

// Upload stores a new document. Progress images cannot be uploaded by hand;
// that category is reserved for documents derived from milestone photos.
func (s *Service) Upload(ctx context.Context, projectID int, in UploadInput) (*model.Document, error) {
	if in.Name == "" {
		return nil, &model.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if in.Category == model.CategoryProgressImage {
		return nil, &model.ValidationError{Field: "category", Reason: "progress_image is reserved for derived documents"}
	}
	if in.Category == "" {
		in.Category = model.CategoryOther
	}

	url := in.URL
	if url == "" {
		if len(in.Data) == 0 {
			return nil, &model.ValidationError{Field: "file", Reason: "either bytes or url is required"}
		}
		name := fmt.Sprintf("projects/%d/documents/%d%s", projectID, time.Now().UnixNano(), path.Ext(in.Name))
		var err error
		url, err = s.blobs.PutObject(ctx, name, in.Data, in.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store document: %w", err)
		}
	}

	d := &model.Document{
		ID:                  fmt.Sprintf("doc_%d_%d", projectID, time.Now().UnixNano()),
		ProjectID:           projectID,
		Name:                in.Name,
		Category:            in.Category,
		Type:                in.ContentType,
		URL:                 url,
		Size:                int64(len(in.Data)),
		UploadedBy:          in.UploadedBy,
		MilestoneRef:        in.MilestoneRef,
		SharedWithHomeowner: in.SharedWithHomeowner,
	}

	msg := outbox.DocumentMessage(mqcontracts.RoutingDocumentUploaded, mqcontracts.DocumentUploadedPayload{
		DocumentID:   d.ID,
		ProjectID:    projectID,
		Name:         d.Name,
		Category:     d.Category,
		MilestoneRef: d.MilestoneRef,
		TraceID:      trace.FromContext(ctx),
	})
	if err := s.store.Insert(ctx, d, msg); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Document uploaded",
		zap.String("document_id", d.ID),
		zap.Int("project_id", projectID),
		zap.String("category", d.Category),
	)
	return d, nil
}

// List returns the reconciled document set for a project: derived progress
// images from milestone photos merged with the uploaded documents.
func (s *Service) List(ctx context.Context, projectID int) ([]model.Document, error) {
	start := time.Now()

	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	merged := Reconcile(milestones, uploaded)
	metrics.RecordReconcileDuration(time.Since(start))
	return merged, nil
}

// MarkViewed records a homeowner opening an uploaded document. Derived
// document ids are rejected: their viewed flag mirrors milestone approval.
func (s *Service) MarkViewed(ctx context.Context, documentID string) error {
	return s.store.MarkViewedByHomeowner(ctx, documentID)
}
