package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists access log entries. Entries are append-only: there is
// deliberately no update or delete.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Entry, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error)
}
