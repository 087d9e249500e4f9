package models

import (
	"errors"
	"time"
)

// DoseStatus represents the lifecycle state of a scheduled dose.
type DoseStatus string

const (
	DoseStatusScheduled    DoseStatus = "scheduled"
	DoseStatusDue          DoseStatus = "due"
	DoseStatusOverdue      DoseStatus = "overdue"
	DoseStatusAdministered DoseStatus = "administered"
)

// Valid reports whether the status is a supported value.
func (s DoseStatus) Valid() bool {
	switch s {
	case DoseStatusScheduled, DoseStatusDue, DoseStatusOverdue, DoseStatusAdministered:
		return true
	default:
		return false
	}
}

// ErrAlreadyAdministered signals that a dose record has already reached its
// terminal state. The record is returned unchanged alongside this error.
var ErrAlreadyAdministered = errors.New("dose already administered")

// DoseRecord is the schedulable unit of the vaccination workflow. Every
// status except administered is derived from the due date; administered is
// terminal and set exactly once.
type DoseRecord struct {
	ID                string     `db:"id" json:"id"`
	SubjectID         string     `db:"subject_id" json:"subject_id"`
	VaccineTemplateID string     `db:"vaccine_template_id" json:"vaccine_template_id"`
	VaccineName       string     `db:"vaccine_name" json:"vaccine_name"`
	DoseNumber        int        `db:"dose_number" json:"dose_number"`
	DueDate           time.Time  `db:"due_date" json:"due_date"`
	AdministeredDate  *time.Time `db:"administered_date" json:"administered_date,omitempty"`
	AdministeredBy    *string    `db:"administered_by" json:"administered_by,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Administered reports whether the record reached its terminal state.
func (r DoseRecord) Administered() bool {
	return r.AdministeredDate != nil
}

// DeriveStatus computes the read-only status of a record at the given time.
// dueWindow is how long before the due date a scheduled dose becomes due.
func DeriveStatus(r DoseRecord, now time.Time, dueWindow time.Duration) DoseStatus {
	if r.Administered() {
		return DoseStatusAdministered
	}
	if now.After(r.DueDate) {
		return DoseStatusOverdue
	}
	if !now.Before(r.DueDate.Add(-dueWindow)) {
		return DoseStatusDue
	}
	return DoseStatusScheduled
}

// MarkAdministered performs the single legal mutating transition. When the
// record is already administered it is returned unchanged together with
// ErrAlreadyAdministered; callers use this as the local idempotency guard
// before any remote submission.
func MarkAdministered(r DoseRecord, staffID string, notes *string, now time.Time) (DoseRecord, error) {
	if r.Administered() {
		return r, ErrAlreadyAdministered
	}
	at := now.UTC()
	r.AdministeredDate = &at
	r.AdministeredBy = &staffID
	if notes != nil && *notes != "" {
		r.Notes = notes
	}
	r.UpdatedAt = at
	return r, nil
}

// DoseView pairs a record with its derived status for API responses.
type DoseView struct {
	DoseRecord
	Status DoseStatus `json:"status"`
}
