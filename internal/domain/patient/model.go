package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the canonical patient record. The health ID is issued once at
// profile creation and never changes; the QR payload is the scannable token
// that resolves to it.
type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	HealthID          string     `db:"health_id" json:"health_id"`
	QRPayload         string     `db:"qr_payload" json:"qr_payload"`
	FullName          string     `db:"full_name" json:"full_name"`
	Email             string     `db:"email" json:"email"`
	DateOfBirth       *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender            string     `db:"gender" json:"gender,omitempty"`
	ContactNumber     string     `db:"contact_number" json:"contact_number,omitempty"`
	Address           string     `db:"address" json:"address,omitempty"`
	BloodGroup        string     `db:"blood_group" json:"blood_group,omitempty"`
	OrganDonor        bool       `db:"organ_donor" json:"organ_donor"`
	Allergies         string     `db:"allergies" json:"allergies,omitempty"`
	ChronicConditions string     `db:"chronic_conditions" json:"chronic_conditions,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

var bloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// ValidBloodGroup reports whether bg is a recognized ABO/Rh group. Empty is
// allowed; the field is optional.
func ValidBloodGroup(bg string) bool {
	return bg == "" || bloodGroups[bg]
}

// View projects the profile for a requesting doctor by authorization level.
// BASIC doctors see identity and contact details only; STANDARD and FULL see
// the complete clinical profile. The projection is pure: it never touches
// storage and never mutates the receiver.
func (p *Patient) View(level string) map[string]interface{} {
	view := map[string]interface{}{
		"id":             p.ID,
		"health_id":      p.HealthID,
		"qr_payload":     p.QRPayload,
		"full_name":      p.FullName,
		"date_of_birth":  p.DateOfBirth,
		"gender":         p.Gender,
		"contact_number": p.ContactNumber,
		"address":        p.Address,
	}
	if level == "BASIC" {
		return view
	}

	view["email"] = p.Email
	view["blood_group"] = p.BloodGroup
	view["organ_donor"] = p.OrganDonor
	view["allergies"] = p.Allergies
	view["chronic_conditions"] = p.ChronicConditions
	return view
}

// EmergencyContact is a person who may act for the patient in emergencies.
// The can_grant_access flag is stored for a future emergency-contact grant
// workflow; no code path consumes it yet.
type EmergencyContact struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	Name           string    `db:"name" json:"name"`
	Relationship   string    `db:"relationship" json:"relationship"`
	Phone          string    `db:"phone" json:"phone"`
	CanGrantAccess bool      `db:"can_grant_access" json:"can_grant_access"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
