package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateHospital(ctx context.Context, h *Hospital) error
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	ListHospitals(ctx context.Context) ([]*Hospital, error)

	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*Doctor, int, error)
	ListPending(ctx context.Context) ([]*Doctor, error)

	CreateConsultation(ctx context.Context, c *Consultation) error
	ListConsultations(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
}
