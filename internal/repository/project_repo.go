package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

// ProjectRepository reads the collaborator data the gate and the notification
// dispatcher need. Projects are written by the marketplace, not by this
// service.
type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int) (*model.Project, error) {
	query := `
		SELECT id, contractor_account_id, homeowner_account_id,
		       homeowner_user_id, homeowner_email, contractor_user_id,
		       platform_fee_bps
		FROM projects
		WHERE id = $1
	`

	var p model.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ContractorAccountID,
		&p.HomeownerAccountID,
		&p.HomeownerUserID,
		&p.HomeownerEmail,
		&p.ContractorUserID,
		&p.PlatformFeeBps,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get project", zap.Int("id", id), zap.Error(err))
		return nil, err
	}
	return &p, nil
}
