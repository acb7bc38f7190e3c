// Package identity owns accounts, credentials, and session tokens. Profile
// creation is explicit: registering a patient or doctor creates the user row
// and the role profile in one transaction, so a half-registered account
// never exists.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/doctor"
	"github.com/pulseid/pulseid/internal/domain/patient"
	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/internal/platform/db"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInactive           = errors.New("account is deactivated")
)

type Service struct {
	repo     Repository
	patients *patient.Service
	doctors  *doctor.Service
	issuer   *auth.TokenIssuer
	revoked  *auth.TokenRevocationStore
	audit    *audit.Service
	logger   zerolog.Logger

	pool *pgxpool.Pool
}

func NewService(repo Repository, patients *patient.Service, doctors *doctor.Service, issuer *auth.TokenIssuer, revoked *auth.TokenRevocationStore, auditSvc *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		issuer:   issuer,
		revoked:  revoked,
		audit:    auditSvc,
		logger:   logger,
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

// RegisterParams describes a self-service registration.
type RegisterParams struct {
	Email    string
	Password string
	FullName string
	Role     Role

	// Patient profile fields, used when Role is PATIENT.
	Profile patient.ProfileParams

	// Doctor profile fields, used when Role is DOCTOR.
	Practice doctor.RegisterParams
}

// RegisterResult bundles the account and whichever profile was created.
type RegisterResult struct {
	User    *User            `json:"user"`
	Patient *patient.Patient `json:"patient,omitempty"`
	Doctor  *doctor.Doctor   `json:"doctor,omitempty"`
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates the account and its role profile atomically. Lab and
// hospital-admin accounts carry no profile of their own.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*RegisterResult, error) {
	if !p.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", p.Role)
	}
	if p.Role == RoleAdmin {
		return nil, fmt.Errorf("admin accounts are provisioned out of band")
	}
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || p.FullName == "" {
		return nil, fmt.Errorf("email and full name are required")
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := s.hashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{}
	err = s.inTx(ctx, func(ctx context.Context) error {
		u := &User{
			Email:        email,
			PasswordHash: hash,
			FullName:     p.FullName,
			Role:         p.Role,
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		u.IsActive = true
		result.User = u

		switch p.Role {
		case RolePatient:
			prof, err := s.patients.CreateProfile(ctx, u.ID, p.Profile)
			if err != nil {
				return err
			}
			prof.FullName = u.FullName
			prof.Email = u.Email
			result.Patient = prof
			_, err = s.audit.Record(ctx, audit.RecordParams{
				ActorID:   &u.ID,
				PatientID: &prof.ID,
				Action:    audit.ActionCreateHealthID,
				Details:   fmt.Sprintf("Health ID %s issued at registration", prof.HealthID),
			})
			return err
		case RoleDoctor:
			prac, err := s.doctors.Register(ctx, u.ID, p.Practice)
			if err != nil {
				return err
			}
			prac.FullName = u.FullName
			prac.Email = u.Email
			result.Doctor = prac
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", result.User.ID.String()).
		Str("role", string(result.User.Role)).
		Msg("account registered")
	return result, nil
}

// RegisterPatientFor lets a doctor or admin onboard a patient at the desk.
// The acting user, not the patient, is the audit actor.
func (s *Service) RegisterPatientFor(ctx context.Context, actorID uuid.UUID, p RegisterParams, ip string) (*RegisterResult, error) {
	p.Role = RolePatient
	result, err := s.Register(ctx, p)
	if err != nil {
		return nil, err
	}
	_, err = s.audit.Record(ctx, audit.RecordParams{
		ActorID:   &actorID,
		PatientID: &result.Patient.ID,
		Action:    audit.ActionCreateHealthID,
		Details:   fmt.Sprintf("Patient %s onboarded with Health ID %s", result.User.FullName, result.Patient.HealthID),
		IPAddress: ip,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LoginResult carries the session token and account.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login checks credentials and mints a token. Every successful login is
// written to the access log.
func (s *Service) Login(ctx context.Context, email, password, tenantID, ip string) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactive
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(u.ID, string(u.Role), tenantID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if _, err := s.audit.Record(ctx, audit.RecordParams{
		ActorID:   &u.ID,
		Action:    audit.ActionLogin,
		Details:   fmt.Sprintf("Login as %s", u.Role),
		IPAddress: ip,
	}); err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, User: u}, nil
}

// Logout revokes the presented token by JTI.
func (s *Service) Logout(userID uuid.UUID, jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.revoked.RevokeForUser(jti, userID.String(), expiresAt)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}
