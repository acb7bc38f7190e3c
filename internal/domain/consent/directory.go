package consent

import (
	"context"

	"github.com/google/uuid"
)

// Subject is the minimal patient view the consent engine needs: identity for
// audit details and a contact number for delivering one-time codes.
type Subject struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	HealthID      string
	FullName      string
	Email         string
	ContactNumber string
}

// Practitioner is the minimal doctor view: verification gates every consent
// operation and the authorization level drives profile redaction.
type Practitioner struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	FullName           string
	Email              string
	Verified           bool
	AuthorizationLevel string
}

// Directory resolves patients and doctors for the consent engine without
// coupling it to their packages. The server wires an adapter over the
// patient and doctor services.
type Directory interface {
	SubjectByID(ctx context.Context, id uuid.UUID) (*Subject, error)
	SubjectByUserID(ctx context.Context, userID uuid.UUID) (*Subject, error)
	SubjectByHealthID(ctx context.Context, healthID string) (*Subject, error)
	PractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	PractitionerByUserID(ctx context.Context, userID uuid.UUID) (*Practitioner, error)
}
