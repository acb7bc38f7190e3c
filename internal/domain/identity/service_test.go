package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/doctor"
	"github.com/pulseid/pulseid/internal/domain/patient"
	"github.com/pulseid/pulseid/internal/platform/auth"
	"github.com/pulseid/pulseid/internal/platform/notification"
)

type userRepo struct {
	users map[uuid.UUID]*User
}

func (r *userRepo) Create(_ context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.IsActive = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *userRepo) Update(_ context.Context, u *User) error {
	if _, ok := r.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

type patientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func (r *patientRepo) Create(_ context.Context, p *patient.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = p
	return nil
}

func (r *patientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if p, ok := r.patients[id]; ok {
		return p, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *patientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*patient.Patient, error) {
	for _, p := range r.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *patientRepo) GetByHealthID(_ context.Context, healthID string) (*patient.Patient, error) {
	for _, p := range r.patients {
		if p.HealthID == healthID {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *patientRepo) Update(_ context.Context, _ *patient.Patient) error { return nil }

func (r *patientRepo) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (r *patientRepo) AddContact(_ context.Context, _ *patient.EmergencyContact) error { return nil }

func (r *patientRepo) ListContacts(_ context.Context, _ uuid.UUID) ([]*patient.EmergencyContact, error) {
	return nil, nil
}

func (r *patientRepo) RemoveContact(_ context.Context, _, _ uuid.UUID) error { return nil }

type doctorRepo struct {
	doctors map[uuid.UUID]*doctor.Doctor
}

func (r *doctorRepo) CreateHospital(_ context.Context, _ *doctor.Hospital) error { return nil }
func (r *doctorRepo) GetHospital(_ context.Context, _ uuid.UUID) (*doctor.Hospital, error) {
	return nil, pgx.ErrNoRows
}
func (r *doctorRepo) ListHospitals(_ context.Context) ([]*doctor.Hospital, error) { return nil, nil }
func (r *doctorRepo) Create(_ context.Context, d *doctor.Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = d
	return nil
}
func (r *doctorRepo) GetByID(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	if d, ok := r.doctors[id]; ok {
		return d, nil
	}
	return nil, pgx.ErrNoRows
}
func (r *doctorRepo) GetByUserID(_ context.Context, _ uuid.UUID) (*doctor.Doctor, error) {
	return nil, pgx.ErrNoRows
}
func (r *doctorRepo) Update(_ context.Context, _ *doctor.Doctor) error { return nil }
func (r *doctorRepo) List(_ context.Context, _ bool, _, _ int) ([]*doctor.Doctor, int, error) {
	return nil, 0, nil
}
func (r *doctorRepo) ListPending(_ context.Context) ([]*doctor.Doctor, error) { return nil, nil }
func (r *doctorRepo) CreateConsultation(_ context.Context, _ *doctor.Consultation) error {
	return nil
}
func (r *doctorRepo) ListConsultations(_ context.Context, _ uuid.UUID, _, _ int) ([]*doctor.Consultation, int, error) {
	return nil, 0, nil
}

type auditRepo struct {
	entries []*audit.Entry
}

func (a *auditRepo) Append(_ context.Context, e *audit.Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	a.entries = append(a.entries, e)
	return nil
}
func (a *auditRepo) ListByPatient(_ context.Context, _ uuid.UUID, _ int) ([]*audit.Entry, error) {
	return a.entries, nil
}
func (a *auditRepo) Search(_ context.Context, _ map[string]string, _, _ int) ([]*audit.Entry, int, error) {
	return a.entries, len(a.entries), nil
}

func (a *auditRepo) count(action audit.Action) int {
	n := 0
	for _, e := range a.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fixture struct {
	svc     *Service
	issuer  *auth.TokenIssuer
	revoked *auth.TokenRevocationStore
	logbook *auditRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer := auth.NewTokenIssuer("test-secret-with-enough-length!!", time.Hour)
	revoked := auth.NewTokenRevocationStore()
	t.Cleanup(revoked.Close)

	logbook := &auditRepo{}
	auditSvc := audit.NewService(logbook)
	notifier := notification.NewDispatcher(&notification.MockEmailSender{}, &notification.MockSMSSender{}, notification.NewTemplateEngine(), zerolog.Nop())

	patients := patient.NewService(&patientRepo{patients: make(map[uuid.UUID]*patient.Patient)}, "https://pulseid.example.com")
	doctors := doctor.NewService(&doctorRepo{doctors: make(map[uuid.UUID]*doctor.Doctor)}, nil, auditSvc, notifier, nil, zerolog.Nop())

	svc := NewService(&userRepo{users: make(map[uuid.UUID]*User)}, patients, doctors, issuer, revoked, auditSvc, zerolog.Nop())
	return &fixture{svc: svc, issuer: issuer, revoked: revoked, logbook: logbook}
}

func validPatientParams() RegisterParams {
	return RegisterParams{
		Email:    "asha@example.com",
		Password: "correct-horse-battery",
		FullName: "Asha Rao",
		Role:     RolePatient,
		Profile:  patient.ProfileParams{BloodGroup: "O+"},
	}
}

func TestRegisterPatientIssuesHealthID(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Register(context.Background(), validPatientParams())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Patient == nil || !strings.HasPrefix(result.Patient.HealthID, "HID-") {
		t.Fatalf("patient profile = %+v, want health ID", result.Patient)
	}
	if result.User.Role != RolePatient {
		t.Errorf("role = %q, want PATIENT", result.User.Role)
	}
	if f.logbook.count(audit.ActionCreateHealthID) != 1 {
		t.Error("registration should log the health ID issuance once")
	}
}

func TestRegisterDoctorStartsUnverified(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Register(context.Background(), RegisterParams{
		Email:    "meera@example.com",
		Password: "correct-horse-battery",
		FullName: "Meera Iyer",
		Role:     RoleDoctor,
		Practice: doctor.RegisterParams{LicenseNumber: "MH-44812"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Doctor == nil || result.Doctor.IsVerified {
		t.Error("doctor registrations must start unverified")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, validPatientParams()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := f.svc.Register(ctx, validPatientParams()); err != ErrEmailTaken {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	f := newFixture(t)
	p := validPatientParams()
	p.Password = "short"
	if _, err := f.svc.Register(context.Background(), p); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	f := newFixture(t)
	p := validPatientParams()
	p.Role = RoleAdmin
	if _, err := f.svc.Register(context.Background(), p); err == nil {
		t.Fatal("admin self-registration must be rejected")
	}
}

func TestLoginIssuesTokenAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, validPatientParams()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := f.svc.Login(ctx, "Asha@Example.com", "correct-horse-battery", "main", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := f.issuer.Parse(result.Token)
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims.Role != "PATIENT" || claims.TenantID != "main" {
		t.Errorf("claims = %+v, want PATIENT in tenant main", claims)
	}
	if f.logbook.count(audit.ActionLogin) != 1 {
		t.Error("login should be logged once")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, validPatientParams()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Login(ctx, "asha@example.com", "wrong", "", ""); err != ErrInvalidCredentials {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if f.logbook.count(audit.ActionLogin) != 0 {
		t.Error("failed logins must not appear as LOGIN entries")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, validPatientParams())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := f.svc.Login(ctx, "asha@example.com", "correct-horse-battery", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, _ := f.issuer.Parse(login.Token)

	f.svc.Logout(result.User.ID, claims.ID, claims.ExpiresAt.Time)
	if !f.revoked.IsRevoked(claims.ID) {
		t.Error("logout should revoke the token's JTI")
	}
}
