package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts the grant or, when a row already exists for the
	// (patient, doctor) pair, overwrites its tier, flags, expiry and
	// revocation state so the pair holds at most one row.
	Upsert(ctx context.Context, g *Grant) error

	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	GetByPair(ctx context.Context, patientID, doctorID uuid.UUID) (*Grant, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Grant, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Grant, error)

	// History returns all grants for the patient, revoked and expired
	// included, most recent first, capped at limit.
	History(ctx context.Context, patientID uuid.UUID, limit int) ([]*Grant, error)

	// Revoke stamps revoked_at and clears active. Revoking an already
	// revoked grant is a no-op, not an error.
	Revoke(ctx context.Context, id, patientID uuid.UUID, at time.Time) (*Grant, error)

	CreateChallenge(ctx context.Context, c *OTPChallenge) error

	// LatestUnverifiedByCode returns the most recently issued unverified
	// challenge for the pair carrying exactly this code, or ErrNotFound
	// when none exists. Filtering by code here means a re-request does not
	// invalidate an older, still-unexpired code the patient already holds.
	LatestUnverifiedByCode(ctx context.Context, patientID, doctorID uuid.UUID, code string) (*OTPChallenge, error)

	// MarkVerified flips verified on the challenge only if it is still
	// unverified, reporting whether this call won. A false return means
	// the code was already consumed.
	MarkVerified(ctx context.Context, id uuid.UUID) (bool, error)
}
