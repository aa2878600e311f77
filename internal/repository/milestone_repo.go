package repository

import (
	"context"
	"encoding/json"
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

const milestoneColumns = `
	id, project_id, title, description, amount, due_date, phase_order, status,
	contractor_approved, homeowner_approved, completed_date,
	payment_released, transaction_ref, paid_date, rejections,
	created_at, updated_at
`

// MilestoneRepository is the canonical milestone store. Per-milestone
// serialization is done with SELECT ... FOR UPDATE inside Mutate, and every
// emitted event lands in the outbox within the same transaction as the row
// update.
type MilestoneRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

func (r *MilestoneRepository) Create(ctx context.Context, m *model.Milestone, build func(id int) []outbox.Message) (int, error) {
	start := time.Now()
	r.logger.Debug("Inserting milestone",
		zap.Int("project_id", m.ProjectID),
		zap.String("title", m.Title),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rejections, err := json.Marshal(m.Rejections)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO milestones (
			project_id, title, description, amount, due_date, phase_order, status,
			contractor_approved, homeowner_approved, completed_date,
			payment_released, transaction_ref, paid_date, rejections
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		m.ProjectID,
		m.Title,
		m.Description,
		m.Amount,
		m.DueDate,
		m.Order,
		m.Status,
		m.ContractorApproved,
		m.HomeownerApproved,
		m.CompletedDate,
		m.PaymentReleased,
		m.TransactionRef,
		m.PaidDate,
		rejections,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return 0, err
	}

	// The created event references the generated id, so the messages are
	// built only now and still commit with the insert.
	if build != nil {
		if err := outbox.InsertMessagesInTx(ctx, tx, r.outboxRepo, build(m.ID)); err != nil {
			r.logger.Error("Failed to insert outbox events", zap.Error(err))
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	metrics.RecordDBQueryDuration("insert", "milestones", time.Since(start))
	r.logger.Info("Milestone inserted successfully",
		zap.Int("id", m.ID),
		zap.Int("project_id", m.ProjectID),
	)
	return m.ID, nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id int) (*model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`

	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get milestone", zap.Int("id", id), zap.Error(err))
		return nil, err
	}

	photos, err := r.listPhotos(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	m.Photos = photos[id]
	return m, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID int) ([]model.Milestone, error) {
	start := time.Now()
	query := `SELECT ` + milestoneColumns + `
		FROM milestones
		WHERE project_id = $1
		ORDER BY phase_order ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var milestones []model.Milestone
	var ids []int
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, err
		}
		milestones = append(milestones, *m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	photos, err := r.listPhotos(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range milestones {
		milestones[i].Photos = photos[milestones[i].ID]
	}

	metrics.RecordDBQueryDuration("list", "milestones", time.Since(start))
	return milestones, nil
}

// Mutate runs fn against the milestone while holding its row lock. The
// updated row and any events fn emits commit atomically; an fn error rolls
// everything back and is returned unchanged.
func (r *MilestoneRepository) Mutate(ctx context.Context, id int, fn func(m *model.Milestone) ([]outbox.Message, error)) (*model.Milestone, error) {
	start := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1 FOR UPDATE`
	m, err := scanMilestone(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to lock milestone", zap.Int("id", id), zap.Error(err))
		return nil, err
	}

	photos, err := r.listPhotos(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	m.Photos = photos[id]

	msgs, err := fn(m)
	if err != nil {
		return nil, err
	}

	if err := m.CheckInvariants(); err != nil {
		return nil, err
	}

	rejections, err := json.Marshal(m.Rejections)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE milestones SET
			title = $1, description = $2, amount = $3, due_date = $4,
			phase_order = $5, status = $6,
			contractor_approved = $7, homeowner_approved = $8,
			completed_date = $9, payment_released = $10,
			transaction_ref = $11, paid_date = $12, rejections = $13,
			updated_at = NOW()
		WHERE id = $14
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, update,
		m.Title,
		m.Description,
		m.Amount,
		m.DueDate,
		m.Order,
		m.Status,
		m.ContractorApproved,
		m.HomeownerApproved,
		m.CompletedDate,
		m.PaymentReleased,
		m.TransactionRef,
		m.PaidDate,
		rejections,
		m.ID,
	).Scan(&m.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update milestone", zap.Int("id", id), zap.Error(err))
		return nil, err
	}

	if err := outbox.InsertMessagesInTx(ctx, tx, r.outboxRepo, msgs); err != nil {
		r.logger.Error("Failed to insert outbox events", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	metrics.RecordDBQueryDuration("mutate", "milestones", time.Since(start))
	return m, nil
}

// AttachPhoto appends evidence to a milestone. Photos are insert-only, so no
// row lock on the milestone is needed; the milestone's existence is checked
// by the foreign key.
func (r *MilestoneRepository) AttachPhoto(ctx context.Context, photo *model.Photo, msgs ...outbox.Message) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO milestone_photos (milestone_id, url, caption)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query, photo.MilestoneID, photo.URL, photo.Caption).
		Scan(&photo.ID, &photo.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert photo",
			zap.Int("milestone_id", photo.MilestoneID),
			zap.Error(err),
		)
		return 0, err
	}

	if err := outbox.InsertMessagesInTx(ctx, tx, r.outboxRepo, msgs); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	r.logger.Info("Photo attached",
		zap.Int("photo_id", photo.ID),
		zap.Int("milestone_id", photo.MilestoneID),
	)
	return photo.ID, nil
}

func (r *MilestoneRepository) listPhotos(ctx context.Context, milestoneIDs []int) (map[int][]model.Photo, error) {
	result := make(map[int][]model.Photo)
	if len(milestoneIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, milestone_id, url, caption, created_at
		FROM milestone_photos
		WHERE milestone_id = ANY($1)
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, milestoneIDs)
	if err != nil {
		r.logger.Error("Failed to list photos", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(&p.ID, &p.MilestoneID, &p.URL, &p.Caption, &p.CreatedAt); err != nil {
			return nil, err
		}
		result[p.MilestoneID] = append(result[p.MilestoneID], p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row rowScanner) (*model.Milestone, error) {
	var m model.Milestone
	var rejections []byte
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.Description,
		&m.Amount,
		&m.DueDate,
		&m.Order,
		&m.Status,
		&m.ContractorApproved,
		&m.HomeownerApproved,
		&m.CompletedDate,
		&m.PaymentReleased,
		&m.TransactionRef,
		&m.PaidDate,
		&rejections,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rejections) > 0 {
		if err := json.Unmarshal(rejections, &m.Rejections); err != nil {
			return nil, fmt.Errorf("failed to decode rejections: %w", err)
		}
	}
	return &m, nil
}
