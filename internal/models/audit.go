package models

import "time"

// AuditLog captures a security or medical-record relevant event.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Entity    string    `db:"entity" json:"entity"`
	EntityID  string    `db:"entity_id" json:"entity_id"`
	Detail    *string   `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Audit actions recorded by the vaccination workflow.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionAdministerDose   = "ADMINISTER_DOSE"
	AuditActionDuplicateAttempt = "DUPLICATE_ADMINISTRATION_ATTEMPT"
)
