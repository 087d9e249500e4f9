package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaxport/vaxport-api/internal/models"
)

const doseRecordColumns = `id, subject_id, vaccine_template_id, vaccine_name, dose_number, due_date,
administered_date, administered_by, notes, created_at, updated_at`

// DoseRecordRepository persists dose records. MarkAdministered is the
// authoritative idempotency guard: the UPDATE is conditional on the record
// not having been administered yet.
type DoseRecordRepository struct {
	db *sqlx.DB
}

// NewDoseRecordRepository constructs the repository.
func NewDoseRecordRepository(db *sqlx.DB) *DoseRecordRepository {
	return &DoseRecordRepository{db: db}
}

// Find returns the record identified by subject, vaccine template and dose
// number. That triple is how scanned payloads address records.
func (r *DoseRecordRepository) Find(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int) (*models.DoseRecord, error) {
	var record models.DoseRecord
	query := fmt.Sprintf(`SELECT %s FROM dose_records
WHERE subject_id = $1 AND vaccine_template_id = $2 AND dose_number = $3`, doseRecordColumns)
	if err := r.db.GetContext(ctx, &record, query, subjectID, vaccineTemplateID, doseNumber); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByID returns the record with the given id.
func (r *DoseRecordRepository) FindByID(ctx context.Context, id string) (*models.DoseRecord, error) {
	var record models.DoseRecord
	query := fmt.Sprintf(`SELECT %s FROM dose_records WHERE id = $1`, doseRecordColumns)
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySubject returns every record for a subject ordered by due date.
func (r *DoseRecordRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.DoseRecord, error) {
	records := []models.DoseRecord{}
	query := fmt.Sprintf(`SELECT %s FROM dose_records
WHERE subject_id = $1 ORDER BY due_date ASC, dose_number ASC`, doseRecordColumns)
	if err := r.db.SelectContext(ctx, &records, query, subjectID); err != nil {
		return nil, fmt.Errorf("list dose records for %s: %w", subjectID, err)
	}
	return records, nil
}

// MarkAdministered commits the administration exactly once. The WHERE clause
// makes the call race-safe: whichever session lands first wins and every
// later attempt updates zero rows. Zero rows returns the existing record
// together with sql.ErrNoRows so callers can shape a conflict response.
func (r *DoseRecordRepository) MarkAdministered(ctx context.Context, subjectID, vaccineTemplateID string, doseNumber int, staffID string, notes *string, at time.Time) (*models.DoseRecord, error) {
	var record models.DoseRecord
	query := fmt.Sprintf(`UPDATE dose_records
SET administered_date = $4, administered_by = $5, notes = COALESCE($6, notes), updated_at = $4
WHERE subject_id = $1 AND vaccine_template_id = $2 AND dose_number = $3 AND administered_date IS NULL
RETURNING %s`, doseRecordColumns)

	err := r.db.GetContext(ctx, &record, query, subjectID, vaccineTemplateID, doseNumber, at.UTC(), staffID, notes)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mark dose administered: %w", err)
	}

	existing, findErr := r.Find(ctx, subjectID, vaccineTemplateID, doseNumber)
	if findErr != nil {
		return nil, findErr
	}
	return existing, sql.ErrNoRows
}
