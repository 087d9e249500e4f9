package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaxport/vaxport-api/internal/models"
)

// DriveRepository reads vaccination drives and their participant lists.
type DriveRepository struct {
	db *sqlx.DB
}

// NewDriveRepository constructs the repository.
func NewDriveRepository(db *sqlx.DB) *DriveRepository {
	return &DriveRepository{db: db}
}

// FindByID returns the drive with the given id.
func (r *DriveRepository) FindByID(ctx context.Context, id string) (*models.Drive, error) {
	var drive models.Drive
	query := `SELECT id, name, vaccine_template_id, vaccine_name, start_date, end_date, active, created_at, updated_at
FROM drives WHERE id = $1`
	if err := r.db.GetContext(ctx, &drive, query, id); err != nil {
		return nil, err
	}
	return &drive, nil
}

// ListByWorker returns the drives assigned to a worker, newest first.
func (r *DriveRepository) ListByWorker(ctx context.Context, workerID string, activeOnly bool) ([]models.Drive, error) {
	drives := []models.Drive{}
	query := `SELECT d.id, d.name, d.vaccine_template_id, d.vaccine_name, d.start_date, d.end_date, d.active, d.created_at, d.updated_at
FROM drives d
JOIN drive_workers dw ON dw.drive_id = d.id
WHERE dw.worker_id = $1`
	args := []interface{}{workerID}
	if activeOnly {
		query += ` AND d.active = TRUE`
	}
	query += ` ORDER BY d.start_date DESC`

	if err := r.db.SelectContext(ctx, &drives, query, args...); err != nil {
		return nil, fmt.Errorf("list drives for worker %s: %w", workerID, err)
	}
	return drives, nil
}

// IsParticipant reports whether the subject belongs to the drive.
func (r *DriveRepository) IsParticipant(ctx context.Context, driveID, subjectID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM drive_participants WHERE drive_id = $1 AND subject_id = $2`
	if err := r.db.GetContext(ctx, &count, query, driveID, subjectID); err != nil {
		return false, fmt.Errorf("check drive participant: %w", err)
	}
	return count > 0, nil
}
