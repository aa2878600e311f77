package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/outbox"
)

// DocumentRepository holds uploaded documents only. Derived progress-image
// documents are recomputed from milestone photos on every read and are never
// written here.
type DocumentRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

func (r *DocumentRepository) Insert(ctx context.Context, d *model.Document, msgs ...outbox.Message) error {
	start := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO documents (
			id, project_id, name, category, type, url, size,
			uploaded_by, milestone_ref, shared_with_homeowner, homeowner_viewed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING uploaded_at
	`
	err = tx.QueryRow(ctx, query,
		d.ID,
		d.ProjectID,
		d.Name,
		d.Category,
		d.Type,
		d.URL,
		d.Size,
		d.UploadedBy,
		d.MilestoneRef,
		d.SharedWithHomeowner,
		d.HomeownerViewed,
	).Scan(&d.UploadedAt)
	if err != nil {
		r.logger.Error("Failed to insert document",
			zap.String("id", d.ID),
			zap.Int("project_id", d.ProjectID),
			zap.Error(err),
		)
		return err
	}

	if err := outbox.InsertMessagesInTx(ctx, tx, r.outboxRepo, msgs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	metrics.RecordDBQueryDuration("insert", "documents", time.Since(start))
	r.logger.Info("Document inserted",
		zap.String("id", d.ID),
		zap.Int("project_id", d.ProjectID),
		zap.String("category", d.Category),
	)
	return nil
}

func (r *DocumentRepository) ListByProject(ctx context.Context, projectID int) ([]model.Document, error) {
	query := `
		SELECT id, project_id, name, category, type, url, size, uploaded_at,
		       uploaded_by, milestone_ref, shared_with_homeowner, homeowner_viewed
		FROM documents
		WHERE project_id = $1
		ORDER BY uploaded_at DESC
	`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID,
			&d.ProjectID,
			&d.Name,
			&d.Category,
			&d.Type,
			&d.URL,
			&d.Size,
			&d.UploadedAt,
			&d.UploadedBy,
			&d.MilestoneRef,
			&d.SharedWithHomeowner,
			&d.HomeownerViewed,
		); err != nil {
			r.logger.Error("Failed to scan document", zap.Error(err))
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkViewedByHomeowner records that the homeowner opened an uploaded
// document. Derived documents never hit this path.
func (r *DocumentRepository) MarkViewedByHomeowner(ctx context.Context, documentID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE documents SET homeowner_viewed = TRUE WHERE id = $1
	`, documentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetByID fetches a single uploaded document.
func (r *DocumentRepository) GetByID(ctx context.Context, documentID string) (*model.Document, error) {
	query := `
		SELECT id, project_id, name, category, type, url, size, uploaded_at,
		       uploaded_by, milestone_ref, shared_with_homeowner, homeowner_viewed
		FROM documents
		WHERE id = $1
	`
	var d model.Document
	err := r.db.QueryRow(ctx, query, documentID).Scan(
		&d.ID,
		&d.ProjectID,
		&d.Name,
		&d.Category,
		&d.Type,
		&d.URL,
		&d.Size,
		&d.UploadedAt,
		&d.UploadedBy,
		&d.MilestoneRef,
		&d.SharedWithHomeowner,
		&d.HomeownerViewed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
