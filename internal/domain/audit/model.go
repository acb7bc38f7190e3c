package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action tags classify what an access log entry documents.
type Action string

const (
	ActionViewProfile        Action = "VIEW_PROFILE"
	ActionViewRecords        Action = "VIEW_RECORDS"
	ActionUploadRecord       Action = "UPLOAD_RECORD"
	ActionLogin              Action = "LOGIN"
	ActionCreateConsultation Action = "CREATE_CONSULTATION"
	ActionUploadDocument     Action = "UPLOAD_DOCUMENT"
	ActionGrantAccess        Action = "GRANT_ACCESS"
	ActionRevokeAccess       Action = "REVOKE_ACCESS"
	ActionCreateHealthID     Action = "CREATE_HEALTH_ID"
)

// Valid reports whether a is one of the known action tags.
func (a Action) Valid() bool {
	switch a {
	case ActionViewProfile, ActionViewRecords, ActionUploadRecord, ActionLogin,
		ActionCreateConsultation, ActionUploadDocument, ActionGrantAccess,
		ActionRevokeAccess, ActionCreateHealthID:
		return true
	}
	return false
}

// Entry is one append-only access log record. Actor and patient references
// are nullable so entries survive deletion of either side.
type Entry struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ActorID   *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Action    Action     `db:"action" json:"action"`
	Details   string     `db:"details" json:"details"`
	IPAddress string     `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
