// Package consent implements the sharing ledger: who may see a patient's
// record, at what tier, and the OTP ceremony that elevates a doctor from
// quick access to full access.
package consent

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/platform/db"
	"github.com/pulseid/pulseid/internal/platform/notification"
)

// HistoryLimit caps how many entries the history endpoints return.
const HistoryLimit = 50

// Service is the consent engine. Every state change writes its access-log
// entry inside the same transaction, so a grant without an audit trail
// cannot exist.
type Service struct {
	repo      Repository
	directory Directory
	audit     *audit.Service
	notifier  *notification.Dispatcher
	logger    zerolog.Logger

	// pool backs transactional writes; nil (in tests) runs each step
	// directly against the repository.
	pool *pgxpool.Pool

	// throttle rate-limits OTP issuance per (doctor, patient) pair; nil
	// disables throttling.
	throttle    *redis.Client
	throttleTTL time.Duration

	now func() time.Time
}

func NewService(repo Repository, directory Directory, auditSvc *audit.Service, notifier *notification.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		audit:     auditSvc,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// WithPool enables transactional writes over the given pool.
func (s *Service) WithPool(pool *pgxpool.Pool) *Service {
	s.pool = pool
	return s
}

// SetDirectory installs the patient/doctor lookup after construction. The
// directory is an adapter over services that themselves depend on this one,
// so the server wires it in a second step.
func (s *Service) SetDirectory(d Directory) {
	s.directory = d
}

// WithThrottle enables Redis-backed OTP request throttling.
func (s *Service) WithThrottle(client *redis.Client, ttl time.Duration) *Service {
	s.throttle = client
	s.throttleTTL = ttl
	return s
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.InTx(ctx, s.pool, fn)
}

// GrantParams describes a patient-initiated grant.
type GrantParams struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	AccessType AccessType
	ExpiresAt  *time.Time
	IPAddress  string
}

// Grant records that the patient shares their record with the doctor at the
// given tier. Granting to a doctor who already holds a grant, revoked or
// not, reuses the row: the pair never accumulates duplicates.
func (s *Service) Grant(ctx context.Context, p GrantParams) (*Grant, error) {
	if !p.AccessType.Valid() {
		return nil, ErrInvalidType
	}

	doc, err := s.directory.PractitionerByID(ctx, p.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if !doc.Verified {
		return nil, ErrDoctorUnverified
	}
	subject, err := s.directory.SubjectByID(ctx, p.PatientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	g := &Grant{
		PatientID:  p.PatientID,
		DoctorID:   p.DoctorID,
		AccessType: p.AccessType,
	}
	g.applyTier(s.now(), p.ExpiresAt)

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Upsert(ctx, g); err != nil {
			return fmt.Errorf("upsert grant: %w", err)
		}
		_, err := s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &subject.UserID,
			PatientID: &p.PatientID,
			Action:    audit.ActionGrantAccess,
			Details:   fmt.Sprintf("Granted %s access to Dr. %s", g.AccessType, doc.FullName),
			IPAddress: p.IPAddress,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.DispatchAsync(notification.TemplateAccessGranted, map[string]string{
		"doctor_name": doc.FullName,
		"access_type": string(g.AccessType),
		"health_id":   subject.HealthID,
	}, subject.Email)

	return g, nil
}

// Revoke withdraws a grant. Revoking twice is harmless; the original
// revocation timestamp is preserved.
func (s *Service) Revoke(ctx context.Context, grantID, patientID uuid.UUID, ip string) (*Grant, error) {
	subject, err := s.directory.SubjectByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	var g *Grant
	err = s.inTx(ctx, func(ctx context.Context) error {
		g, err = s.repo.Revoke(ctx, grantID, patientID, s.now())
		if err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &subject.UserID,
			PatientID: &patientID,
			Action:    audit.ActionRevokeAccess,
			Details:   fmt.Sprintf("Revoked %s access for doctor %s", g.AccessType, g.DoctorID),
			IPAddress: ip,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if doc, derr := s.directory.PractitionerByID(ctx, g.DoctorID); derr == nil {
		s.notifier.DispatchAsync(notification.TemplateAccessRevoked, map[string]string{
			"health_id": subject.HealthID,
		}, doc.Email)
	}

	return g, nil
}

// ActiveGrants lists the grants currently conferring access for the patient.
// Expired grants are filtered here rather than in SQL so expiry stays a
// single in-memory rule.
func (s *Service) ActiveGrants(ctx context.Context, patientID uuid.UUID) ([]*Grant, error) {
	grants, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	effective := grants[:0]
	for _, g := range grants {
		if g.IsEffective(now) {
			effective = append(effective, g)
		}
	}
	return effective, nil
}

// GrantsForDoctor lists the patients a doctor currently has access to.
func (s *Service) GrantsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Grant, error) {
	grants, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	effective := grants[:0]
	for _, g := range grants {
		if g.IsEffective(now) {
			effective = append(effective, g)
		}
	}
	return effective, nil
}

// History returns the patient's full sharing history, revoked and expired
// grants included, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*Grant, error) {
	return s.repo.History(ctx, patientID, HistoryLimit)
}

// AccessHistory returns the patient's own access-log entries, newest first.
// This is what the sharing-history screen shows: who touched the record and
// when, not the grant rows themselves.
func (s *Service) AccessHistory(ctx context.Context, patientID uuid.UUID) ([]*audit.Entry, error) {
	return s.audit.HistoryForPatient(ctx, patientID, HistoryLimit)
}

// Authorize decides whether the doctor may read the patient's profile right
// now. A verified doctor with no standing grant gets an automatic QR_QUICK
// grant, which is the QR-scan flow: possession of the code is treated as
// patient-mediated consent. A grant the patient explicitly revoked is never
// resurrected here; only a fresh patient action can restore access.
func (s *Service) Authorize(ctx context.Context, doctorID, patientID uuid.UUID, ip string) (*Decision, error) {
	doc, err := s.directory.PractitionerByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if !doc.Verified {
		return &Decision{Allowed: false, Reason: "doctor not verified"}, nil
	}

	g, err := s.repo.GetByPair(ctx, patientID, doctorID)
	switch {
	case err == nil:
		if g.IsEffective(s.now()) {
			return &Decision{
				Allowed:          true,
				AccessType:       g.AccessType,
				CanViewRecords:   g.CanViewRecords,
				CanAddRecords:    g.CanAddRecords,
				CanViewDocuments: g.CanViewDocuments,
				Grant:            g,
			}, nil
		}
		if g.RevokedAt != nil {
			return &Decision{Allowed: false, Reason: "access revoked by patient"}, nil
		}
		// Expired quick access: a new scan renews it below.
	case errors.Is(err, ErrNotFound):
		// First contact: fall through to the auto-grant.
	default:
		return nil, err
	}

	auto, err := s.autoQuickGrant(ctx, doc, patientID, ip)
	if err != nil {
		return nil, err
	}
	return &Decision{
		Allowed:          true,
		AccessType:       auto.AccessType,
		CanViewRecords:   auto.CanViewRecords,
		CanAddRecords:    auto.CanAddRecords,
		CanViewDocuments: auto.CanViewDocuments,
		Grant:            auto,
	}, nil
}

// Check reports the doctor's standing access without side effects. Unlike
// Authorize it never creates a grant: record-level operations require access
// the doctor already holds.
func (s *Service) Check(ctx context.Context, doctorID, patientID uuid.UUID) (*Decision, error) {
	doc, err := s.directory.PractitionerByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if !doc.Verified {
		return &Decision{Allowed: false, Reason: "doctor not verified"}, nil
	}

	g, err := s.repo.GetByPair(ctx, patientID, doctorID)
	if errors.Is(err, ErrNotFound) {
		return &Decision{Allowed: false, Reason: "no grant on record"}, nil
	}
	if err != nil {
		return nil, err
	}
	if !g.IsEffective(s.now()) {
		return &Decision{Allowed: false, Reason: "grant revoked or expired"}, nil
	}
	return &Decision{
		Allowed:          true,
		AccessType:       g.AccessType,
		CanViewRecords:   g.CanViewRecords,
		CanAddRecords:    g.CanAddRecords,
		CanViewDocuments: g.CanViewDocuments,
		Grant:            g,
	}, nil
}

func (s *Service) autoQuickGrant(ctx context.Context, doc *Practitioner, patientID uuid.UUID, ip string) (*Grant, error) {
	g := &Grant{
		PatientID:  patientID,
		DoctorID:   doc.ID,
		AccessType: AccessQRQuick,
	}
	g.applyTier(s.now(), nil)

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Upsert(ctx, g); err != nil {
			return fmt.Errorf("upsert quick grant: %w", err)
		}
		_, err := s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &doc.UserID,
			PatientID: &patientID,
			Action:    audit.ActionGrantAccess,
			Details:   fmt.Sprintf("Quick access auto-granted to Dr. %s via QR scan", doc.FullName),
			IPAddress: ip,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RequestOTP issues a one-time code for the doctor against the patient and
// delivers it to the patient's phone. The code never travels back to the
// doctor through the API; the patient relays it in person.
func (s *Service) RequestOTP(ctx context.Context, doctorID uuid.UUID, healthID, ip string) error {
	doc, err := s.directory.PractitionerByID(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("resolve doctor: %w", err)
	}
	if !doc.Verified {
		return ErrDoctorUnverified
	}
	subject, err := s.directory.SubjectByHealthID(ctx, healthID)
	if err != nil {
		return fmt.Errorf("resolve patient: %w", err)
	}

	if s.throttle != nil {
		key := fmt.Sprintf("otp:req:%s:%s", doctorID, subject.ID)
		ok, err := s.throttle.SetNX(ctx, key, 1, s.throttleTTL).Result()
		if err != nil {
			// Redis being down must not lock doctors out of the flow.
			s.logger.Warn().Err(err).Msg("otp throttle check failed, allowing request")
		} else if !ok {
			return ErrThrottled
		}
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	ch := &OTPChallenge{
		PatientID: subject.ID,
		DoctorID:  doctorID,
		Code:      code,
	}
	if err := s.repo.CreateChallenge(ctx, ch); err != nil {
		return fmt.Errorf("create otp challenge: %w", err)
	}

	s.notifier.DispatchAsync(notification.TemplateOTPCode, map[string]string{
		"doctor_name": doc.FullName,
		"otp_code":    code,
	}, subject.ContactNumber)

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("health_id", healthID).
		Msg("otp challenge issued")
	return nil
}

// VerifyOTP checks the code the patient relayed and, on success, upgrades
// the doctor to a full-access grant. Any unverified, unexpired code for the
// pair is acceptable, so a re-request after a lost SMS does not strand the
// code the patient already received. Each code is single use and dies ten
// minutes after issuance.
func (s *Service) VerifyOTP(ctx context.Context, doctorID uuid.UUID, healthID, code, ip string) (*Grant, error) {
	doc, err := s.directory.PractitionerByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if !doc.Verified {
		return nil, ErrDoctorUnverified
	}
	subject, err := s.directory.SubjectByHealthID(ctx, healthID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	ch, err := s.repo.LatestUnverifiedByCode(ctx, subject.ID, doctorID, code)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if ch.Expired(s.now()) {
		return nil, ErrExpired
	}

	g := &Grant{
		PatientID:  subject.ID,
		DoctorID:   doctorID,
		AccessType: AccessOTPFull,
	}
	g.applyTier(s.now(), nil)

	err = s.inTx(ctx, func(ctx context.Context) error {
		won, err := s.repo.MarkVerified(ctx, ch.ID)
		if err != nil {
			return err
		}
		if !won {
			return ErrInvalidCode
		}
		if err := s.repo.Upsert(ctx, g); err != nil {
			return fmt.Errorf("upsert full grant: %w", err)
		}
		_, err = s.audit.Record(ctx, audit.RecordParams{
			ActorID:   &doc.UserID,
			PatientID: &subject.ID,
			Action:    audit.ActionGrantAccess,
			Details:   fmt.Sprintf("Full access granted to Dr. %s after OTP verification", doc.FullName),
			IPAddress: ip,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.DispatchAsync(notification.TemplateFullAccessGranted, map[string]string{
		"doctor_name": doc.FullName,
		"health_id":   subject.HealthID,
	}, subject.Email)

	return g, nil
}
