package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Authorization levels control how much of a patient profile a doctor sees.
// BASIC doctors get identity and contact fields only; STANDARD and FULL see
// the clinical profile.
const (
	LevelBasic    = "BASIC"
	LevelStandard = "STANDARD"
	LevelFull     = "FULL"
)

func ValidLevel(level string) bool {
	switch level {
	case LevelBasic, LevelStandard, LevelFull:
		return true
	}
	return false
}

type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address,omitempty"`
	City      string    `db:"city" json:"city,omitempty"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Doctor is a practitioner account. New registrations start unverified and
// cannot touch patient data until an admin approves the license.
type Doctor struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	UserID             uuid.UUID  `db:"user_id" json:"user_id"`
	HospitalID         *uuid.UUID `db:"hospital_id" json:"hospital_id,omitempty"`
	FullName           string     `db:"full_name" json:"full_name"`
	Email              string     `db:"email" json:"email"`
	LicenseNumber      string     `db:"license_number" json:"license_number"`
	Specialization     string     `db:"specialization" json:"specialization,omitempty"`
	AuthorizationLevel string     `db:"authorization_level" json:"authorization_level"`
	IsVerified         bool       `db:"is_verified" json:"is_verified"`
	RejectionReason    string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Consultation is one clinical encounter written by a doctor against a
// patient record.
type Consultation struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName   string    `db:"doctor_name" json:"doctor_name,omitempty"`
	Symptoms     string    `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis    string    `db:"diagnosis" json:"diagnosis"`
	Prescription string    `db:"prescription" json:"prescription,omitempty"`
	Notes        string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
