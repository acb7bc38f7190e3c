package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("patient not found")

// Service owns patient profile lifecycle: health ID issuance, QR payload
// construction, profile updates, and emergency contacts.
type Service struct {
	repo    Repository
	baseURL string
}

func NewService(repo Repository, baseURL string) *Service {
	return &Service{repo: repo, baseURL: strings.TrimRight(baseURL, "/")}
}

// ProfileParams carries the mutable profile fields.
type ProfileParams struct {
	DateOfBirth       *time.Time
	Gender            string
	ContactNumber     string
	Address           string
	BloodGroup        string
	OrganDonor        bool
	Allergies         string
	ChronicConditions string
}

// NewHealthID issues a fresh public health identifier. IDs are never reused;
// collisions are prevented by the unique constraint on patients.health_id.
func NewHealthID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "HID-" + strings.ToUpper(hex[:8])
}

// CreateProfile creates the patient record for an existing user. The health
// ID and QR payload are fixed here and never regenerated.
func (s *Service) CreateProfile(ctx context.Context, userID uuid.UUID, params ProfileParams) (*Patient, error) {
	if !ValidBloodGroup(params.BloodGroup) {
		return nil, fmt.Errorf("invalid blood group %q", params.BloodGroup)
	}

	healthID := NewHealthID()
	p := &Patient{
		UserID:            userID,
		HealthID:          healthID,
		QRPayload:         fmt.Sprintf("%s/api/v1/patients/%s", s.baseURL, healthID),
		DateOfBirth:       params.DateOfBirth,
		Gender:            params.Gender,
		ContactNumber:     params.ContactNumber,
		Address:           params.Address,
		BloodGroup:        params.BloodGroup,
		OrganDonor:        params.OrganDonor,
		Allergies:         params.Allergies,
		ChronicConditions: params.ChronicConditions,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient profile: %w", err)
	}
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) GetByHealthID(ctx context.Context, healthID string) (*Patient, error) {
	p, err := s.repo.GetByHealthID(ctx, healthID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// UpdateProfile applies mutable fields to an existing profile. Health ID and
// QR payload are immutable and not touched.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, params ProfileParams) (*Patient, error) {
	if !ValidBloodGroup(params.BloodGroup) {
		return nil, fmt.Errorf("invalid blood group %q", params.BloodGroup)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.DateOfBirth = params.DateOfBirth
	p.Gender = params.Gender
	p.ContactNumber = params.ContactNumber
	p.Address = params.Address
	p.BloodGroup = params.BloodGroup
	p.OrganDonor = params.OrganDonor
	p.Allergies = params.Allergies
	p.ChronicConditions = params.ChronicConditions

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient profile: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) AddEmergencyContact(ctx context.Context, c *EmergencyContact) error {
	return s.repo.AddContact(ctx, c)
}

func (s *Service) EmergencyContacts(ctx context.Context, patientID uuid.UUID) ([]*EmergencyContact, error) {
	return s.repo.ListContacts(ctx, patientID)
}

func (s *Service) RemoveEmergencyContact(ctx context.Context, patientID, contactID uuid.UUID) error {
	err := s.repo.RemoveContact(ctx, patientID, contactID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
