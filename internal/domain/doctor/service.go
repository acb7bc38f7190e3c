// Package doctor covers practitioner accounts, admin license verification,
// hospitals, and the consultations doctors write against patient records.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/consent"
	"github.com/pulseid/pulseid/internal/platform/db"
	"github.com/pulseid/pulseid/internal/platform/notification"
)

var (
	ErrNotFound   = errors.New("doctor not found")
	ErrForbidden  = errors.New("doctor does not hold the required access")
	ErrUnverified = errors.New("doctor is not verified")
)

// PatientRef is the slice of a patient record this package needs.
type PatientRef struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	HealthID string
	FullName string
}

// PatientResolver maps a public health ID to a patient reference. The server
// wires an adapter over the patient service.
type PatientResolver interface {
	ResolveHealthID(ctx context.Context, healthID string) (*PatientRef, error)
}

type Service struct {
	repo     Repository
	consents *consent.Service
	audit    *audit.Service
	notifier *notification.Dispatcher
	patients PatientResolver
	logger   zerolog.Logger

	pool *pgxpool.Pool
	now  func() time.Time
}

func NewService(repo Repository, consents *consent.Service, auditSvc *audit.Service, notifier *notification.Dispatcher, patients PatientResolver, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		consents: consents,
		audit:    auditSvc,
		notifier: notifier,
		patients: patients,
		logger:   logger,
		now:      time.Now,
	}
}

// WithPool enables transactional writes over the given pool.
func (s *Service) WithPool(pool *pgxpool.Pool) *Service {
	s.pool = pool
	return s
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.InTx(ctx, s.pool, fn)
}

// RegisterParams describes a new practitioner registration.
type RegisterParams struct {
	HospitalID     *uuid.UUID
	LicenseNumber  string
	Specialization string
}

// Register creates an unverified doctor profile for an existing user.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, p RegisterParams) (*Doctor, error) {
	if p.LicenseNumber == "" {
		return nil, fmt.Errorf("license number is required")
	}
	d := &Doctor{
		UserID:             userID,
		HospitalID:         p.HospitalID,
		LicenseNumber:      p.LicenseNumber,
		Specialization:     p.Specialization,
		AuthorizationLevel: LevelBasic,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor profile: %w", err)
	}
	return d, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *Service) List(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.List(ctx, verifiedOnly, limit, offset)
}

func (s *Service) ListPending(ctx context.Context) ([]*Doctor, error) {
	return s.repo.ListPending(ctx)
}

// VerifyParams is the admin's verdict on a pending registration.
type VerifyParams struct {
	Approve bool
	Reason  string
	Level   string
}

// Verify approves or rejects a pending doctor. Approval makes the doctor
// eligible for QR scans and OTP requests; rejection records the reason so
// the doctor can see why.
func (s *Service) Verify(ctx context.Context, doctorID uuid.UUID, p VerifyParams) (*Doctor, error) {
	d, err := s.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if p.Approve {
		if p.Level != "" {
			if !ValidLevel(p.Level) {
				return nil, fmt.Errorf("invalid authorization level %q", p.Level)
			}
			d.AuthorizationLevel = p.Level
		}
		d.IsVerified = true
		d.RejectionReason = ""
		at := s.now()
		d.VerifiedAt = &at
	} else {
		if p.Reason == "" {
			return nil, fmt.Errorf("a rejection reason is required")
		}
		d.IsVerified = false
		d.RejectionReason = p.Reason
		d.VerifiedAt = nil
	}

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}

	if p.Approve {
		s.notifier.DispatchAsync(notification.TemplateDoctorVerified, nil, d.Email)
	}
	return d, nil
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.Name == "" {
		return fmt.Errorf("hospital name is required")
	}
	return s.repo.CreateHospital(ctx, h)
}

func (s *Service) ListHospitals(ctx context.Context) ([]*Hospital, error) {
	return s.repo.ListHospitals(ctx)
}

// ConsultationParams is the clinical content of a new consultation.
type ConsultationParams struct {
	Symptoms     string
	Diagnosis    string
	Prescription string
	Notes        string
}

// AddConsultation writes a consultation against the patient identified by
// health ID. The doctor must hold a standing grant with record-write rights;
// the attempt is logged either way.
func (s *Service) AddConsultation(ctx context.Context, d *Doctor, healthID string, p ConsultationParams, ip string) (*Consultation, error) {
	if p.Diagnosis == "" {
		return nil, fmt.Errorf("diagnosis is required")
	}
	patient, err := s.patients.ResolveHealthID(ctx, healthID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	decision, err := s.consents.Check(ctx, d.ID, patient.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed || !decision.CanAddRecords {
		if _, aerr := s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &d.UserID,
			PatientID: &patient.ID,
			Action:    audit.ActionCreateConsultation,
			Details:   fmt.Sprintf("Denied consultation write by Dr. %s: %s", d.FullName, decision.Reason),
			IPAddress: ip,
		}); aerr != nil {
			return nil, aerr
		}
		return nil, ErrForbidden
	}

	c := &Consultation{
		PatientID:    patient.ID,
		DoctorID:     d.ID,
		DoctorName:   d.FullName,
		Symptoms:     p.Symptoms,
		Diagnosis:    p.Diagnosis,
		Prescription: p.Prescription,
		Notes:        p.Notes,
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateConsultation(ctx, c); err != nil {
			return fmt.Errorf("create consultation: %w", err)
		}
		_, err := s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &d.UserID,
			PatientID: &patient.ID,
			Action:    audit.ActionCreateConsultation,
			Details:   fmt.Sprintf("Consultation recorded by Dr. %s", d.FullName),
			IPAddress: ip,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RecordsForDoctor returns the patient's consultation history to a doctor
// whose standing grant allows record reads. Every tier carries that right,
// so in practice this requires any effective grant.
func (s *Service) RecordsForDoctor(ctx context.Context, d *Doctor, healthID string, limit, offset int, ip string) ([]*Consultation, int, error) {
	patient, err := s.patients.ResolveHealthID(ctx, healthID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve patient: %w", err)
	}

	decision, err := s.consents.Check(ctx, d.ID, patient.ID)
	if err != nil {
		return nil, 0, err
	}
	if !decision.Allowed || !decision.CanViewRecords {
		if _, aerr := s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &d.UserID,
			PatientID: &patient.ID,
			Action:    audit.ActionViewRecords,
			Details:   fmt.Sprintf("Denied records read by Dr. %s: %s", d.FullName, decision.Reason),
			IPAddress: ip,
		}); aerr != nil {
			return nil, 0, aerr
		}
		return nil, 0, ErrForbidden
	}

	items, total, err := s.repo.ListConsultations(ctx, patient.ID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.audit.Record(ctx, audit.RecordParams{
		ActorID:   &d.UserID,
		PatientID: &patient.ID,
		Action:    audit.ActionViewRecords,
		Details:   fmt.Sprintf("Records read by Dr. %s", d.FullName),
		IPAddress: ip,
	}); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ConsultationsForPatient is the owner path: patients read their own history
// without a consent check.
func (s *Service) ConsultationsForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListConsultations(ctx, patientID, limit, offset)
}
