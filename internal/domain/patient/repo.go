package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	GetByHealthID(ctx context.Context, healthID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	AddContact(ctx context.Context, c *EmergencyContact) error
	ListContacts(ctx context.Context, patientID uuid.UUID) ([]*EmergencyContact, error)
	RemoveContact(ctx context.Context, patientID, contactID uuid.UUID) error
}
