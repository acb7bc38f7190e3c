package consent

import (
	"time"

	"github.com/google/uuid"
)

// AccessType classifies how a doctor obtained access to a patient.
type AccessType string

const (
	// AccessQRQuick is granted automatically when a verified doctor scans a
	// patient's QR code. It allows reading existing records but carries no
	// record-write or document rights, and lapses after a day.
	AccessQRQuick AccessType = "QR_QUICK"

	// AccessOTPFull is granted after the patient relays a one-time code to
	// the doctor. It carries full rights and no expiry.
	AccessOTPFull AccessType = "OTP_FULL"

	// AccessEmergency carries the same rights as OTP_FULL and is reserved
	// for break-glass scenarios.
	AccessEmergency AccessType = "EMERGENCY"
)

func (t AccessType) Valid() bool {
	switch t {
	case AccessQRQuick, AccessOTPFull, AccessEmergency:
		return true
	}
	return false
}

// QuickAccessTTL is how long a QR_QUICK grant stays effective when the
// patient does not set an explicit expiry.
const QuickAccessTTL = 24 * time.Hour

// OTPValidity is the window within which a one-time code can be verified.
const OTPValidity = 10 * time.Minute

// Grant is one patient-to-doctor sharing relationship. At most one row
// exists per (patient, doctor) pair; re-granting updates the row in place.
type Grant struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID         uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AccessType       AccessType `db:"access_type" json:"access_type"`
	CanViewRecords   bool       `db:"can_view_records" json:"can_view_records"`
	CanAddRecords    bool       `db:"can_add_records" json:"can_add_records"`
	CanViewDocuments bool       `db:"can_view_documents" json:"can_view_documents"`
	Active           bool       `db:"active" json:"active"`
	GrantedAt        time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// applyTier sets the permission flags and default expiry implied by the
// access type. An explicit expiry supplied by the patient wins over the
// tier default.
func (g *Grant) applyTier(now time.Time, explicitExpiry *time.Time) {
	switch g.AccessType {
	case AccessQRQuick:
		g.CanViewRecords = true
		g.CanAddRecords = false
		g.CanViewDocuments = false
		if explicitExpiry != nil {
			g.ExpiresAt = explicitExpiry
		} else {
			exp := now.Add(QuickAccessTTL)
			g.ExpiresAt = &exp
		}
	case AccessOTPFull, AccessEmergency:
		g.CanViewRecords = true
		g.CanAddRecords = true
		g.CanViewDocuments = true
		g.ExpiresAt = explicitExpiry
	}
}

// IsEffective reports whether the grant confers access at the given instant.
// Expiry is evaluated lazily; an expired grant keeps active=true in storage
// and simply stops being effective.
func (g *Grant) IsEffective(now time.Time) bool {
	if !g.Active || g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	return true
}

// OTPChallenge is one issued code for a (patient, doctor) pair. Codes are
// single use: verification flips Verified exactly once.
type OTPChallenge struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Code      string    `db:"code" json:"-"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the challenge is past its validity window.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) > OTPValidity
}

// Decision is the outcome of an access check for a doctor against a patient.
type Decision struct {
	Allowed          bool       `json:"allowed"`
	AccessType       AccessType `json:"access_type,omitempty"`
	CanViewRecords   bool       `json:"can_view_records"`
	CanAddRecords    bool       `json:"can_add_records"`
	CanViewDocuments bool       `json:"can_view_documents"`
	Grant            *Grant     `json:"-"`
	Reason           string     `json:"reason,omitempty"`
}
