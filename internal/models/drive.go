package models

import "time"

// Drive is a time-boxed vaccination campaign associating subjects and staff.
type Drive struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	VaccineTemplateID string    `db:"vaccine_template_id" json:"vaccine_template_id"`
	VaccineName       string    `db:"vaccine_name" json:"vaccine_name"`
	StartDate         time.Time `db:"start_date" json:"start_date"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// DriveFilter scopes drive listings.
type DriveFilter struct {
	WorkerID   string
	ActiveOnly bool
	Page       int
	PageSize   int
}
