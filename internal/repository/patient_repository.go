package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaxport/vaxport-api/internal/models"
)

// PatientRepository reads vaccination subjects. The workflow never mutates
// patients.
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository constructs the repository.
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// FindByID returns the patient with the given id.
func (r *PatientRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	query := `SELECT id, user_id, full_name, birth_date, gender, created_at, updated_at
FROM patients WHERE id = $1 OR user_id = $1`
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, err
	}
	return &patient, nil
}

// Summary returns the advisory display payload for a subject.
func (r *PatientRepository) Summary(ctx context.Context, subjectID string) (*models.PatientSummary, error) {
	patient, err := r.FindByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	summary := &models.PatientSummary{Name: patient.FullName, Gender: patient.Gender}
	if patient.BirthDate != nil {
		age := yearsSince(*patient.BirthDate, time.Now())
		summary.Age = &age
	}
	return summary, nil
}

func yearsSince(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years
}
