package doctor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pulseid/pulseid/internal/domain/audit"
	"github.com/pulseid/pulseid/internal/domain/consent"
	"github.com/pulseid/pulseid/internal/platform/notification"
)

type mockRepo struct {
	doctors       map[uuid.UUID]*Doctor
	hospitals     []*Hospital
	consultations []*Consultation
}

func newMockRepo() *mockRepo {
	return &mockRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockRepo) CreateHospital(_ context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now()
	m.hospitals = append(m.hospitals, h)
	return nil
}

func (m *mockRepo) GetHospital(_ context.Context, id uuid.UUID) (*Hospital, error) {
	for _, h := range m.hospitals {
		if h.ID == id {
			return h, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) ListHospitals(_ context.Context) ([]*Hospital, error) {
	return m.hospitals, nil
}

func (m *mockRepo) Create(_ context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return pgx.ErrNoRows
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, verifiedOnly bool, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if !verifiedOnly || d.IsVerified {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListPending(_ context.Context) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if !d.IsVerified && d.RejectionReason == "" {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateConsultation(_ context.Context, c *Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	m.consultations = append(m.consultations, c)
	return nil
}

func (m *mockRepo) ListConsultations(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range m.consultations {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

type consentRepo struct {
	grants map[[2]uuid.UUID]*consent.Grant
}

func (r *consentRepo) Upsert(_ context.Context, g *consent.Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Active = true
	r.grants[[2]uuid.UUID{g.PatientID, g.DoctorID}] = g
	return nil
}

func (r *consentRepo) GetByID(_ context.Context, id uuid.UUID) (*consent.Grant, error) {
	for _, g := range r.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, consent.ErrNotFound
}

func (r *consentRepo) GetByPair(_ context.Context, patientID, doctorID uuid.UUID) (*consent.Grant, error) {
	if g, ok := r.grants[[2]uuid.UUID{patientID, doctorID}]; ok {
		return g, nil
	}
	return nil, consent.ErrNotFound
}

func (r *consentRepo) ListByPatient(_ context.Context, _ uuid.UUID) ([]*consent.Grant, error) {
	return nil, nil
}

func (r *consentRepo) ListByDoctor(_ context.Context, _ uuid.UUID) ([]*consent.Grant, error) {
	return nil, nil
}

func (r *consentRepo) History(_ context.Context, _ uuid.UUID, _ int) ([]*consent.Grant, error) {
	return nil, nil
}

func (r *consentRepo) Revoke(_ context.Context, _, _ uuid.UUID, _ time.Time) (*consent.Grant, error) {
	return nil, consent.ErrNotFound
}

func (r *consentRepo) CreateChallenge(_ context.Context, _ *consent.OTPChallenge) error { return nil }

func (r *consentRepo) LatestUnverifiedByCode(_ context.Context, _, _ uuid.UUID, _ string) (*consent.OTPChallenge, error) {
	return nil, consent.ErrNotFound
}

func (r *consentRepo) MarkVerified(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil }

type consentDir struct {
	practitioners map[uuid.UUID]*consent.Practitioner
}

func (d *consentDir) SubjectByID(_ context.Context, _ uuid.UUID) (*consent.Subject, error) {
	return nil, consent.ErrNotFound
}

func (d *consentDir) SubjectByUserID(_ context.Context, _ uuid.UUID) (*consent.Subject, error) {
	return nil, consent.ErrNotFound
}

func (d *consentDir) SubjectByHealthID(_ context.Context, _ string) (*consent.Subject, error) {
	return nil, consent.ErrNotFound
}

func (d *consentDir) PractitionerByID(_ context.Context, id uuid.UUID) (*consent.Practitioner, error) {
	if p, ok := d.practitioners[id]; ok {
		return p, nil
	}
	return nil, consent.ErrNotFound
}

func (d *consentDir) PractitionerByUserID(_ context.Context, _ uuid.UUID) (*consent.Practitioner, error) {
	return nil, consent.ErrNotFound
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

type resolver struct {
	ref *PatientRef
}

func (r *resolver) ResolveHealthID(_ context.Context, healthID string) (*PatientRef, error) {
	if r.ref != nil && r.ref.HealthID == healthID {
		return r.ref, nil
	}
	return nil, pgx.ErrNoRows
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	cRepo    *consentRepo
	logbook  *auditRepo
	email    *notification.MockEmailSender
	doc      *Doctor
	patient  *PatientRef
	practice *consent.Practitioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMockRepo()
	doc := &Doctor{
		UserID:             uuid.New(),
		FullName:           "Meera Iyer",
		Email:              "meera@example.com",
		LicenseNumber:      "MH-44812",
		AuthorizationLevel: LevelStandard,
		IsVerified:         true,
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}

	patient := &PatientRef{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		HealthID: "HID-AB12CD34",
		FullName: "Asha Rao",
	}
	practice := &consent.Practitioner{
		ID:       doc.ID,
		UserID:   doc.UserID,
		FullName: doc.FullName,
		Verified: true,
	}

	cRepo := &consentRepo{grants: make(map[[2]uuid.UUID]*consent.Grant)}
	logbook := &auditRepo{}
	auditSvc := audit.NewService(logbook)
	email := &notification.MockEmailSender{}
	notifier := notification.NewDispatcher(email, &notification.MockSMSSender{}, notification.NewTemplateEngine(), zerolog.Nop())

	consents := consent.NewService(cRepo,
		&consentDir{practitioners: map[uuid.UUID]*consent.Practitioner{doc.ID: practice}},
		auditSvc, notifier, zerolog.Nop())

	svc := NewService(repo, consents, auditSvc, notifier, &resolver{ref: patient}, zerolog.Nop())

	return &fixture{
		svc: svc, repo: repo, cRepo: cRepo, logbook: logbook,
		email: email, doc: doc, patient: patient, practice: practice,
	}
}

func (f *fixture) grant(t *testing.T, typ consent.AccessType, canRead, canAdd, canViewDocs bool) {
	t.Helper()
	err := f.cRepo.Upsert(context.Background(), &consent.Grant{
		PatientID:        f.patient.ID,
		DoctorID:         f.doc.ID,
		AccessType:       typ,
		CanViewRecords:   canRead,
		CanAddRecords:    canAdd,
		CanViewDocuments: canViewDocs,
	})
	if err != nil {
		t.Fatalf("seed grant: %v", err)
	}
}

func TestRegisterStartsUnverified(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Register(context.Background(), uuid.New(), RegisterParams{
		LicenseNumber:  "KA-90211",
		Specialization: "Cardiology",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if d.IsVerified {
		t.Error("new registrations must start unverified")
	}
	if d.AuthorizationLevel != LevelBasic {
		t.Errorf("level = %q, want BASIC by default", d.AuthorizationLevel)
	}
}

func TestRegisterRequiresLicense(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Register(context.Background(), uuid.New(), RegisterParams{}); err == nil {
		t.Fatal("expected error for missing license number")
	}
}

func TestVerifyApprovesAndNotifies(t *testing.T) {
	f := newFixture(t)
	pending, _ := f.svc.Register(context.Background(), uuid.New(), RegisterParams{LicenseNumber: "KA-90211"})

	d, err := f.svc.Verify(context.Background(), pending.ID, VerifyParams{Approve: true, Level: LevelFull})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !d.IsVerified || d.VerifiedAt == nil {
		t.Error("approval should mark the doctor verified")
	}
	if d.AuthorizationLevel != LevelFull {
		t.Errorf("level = %q, want FULL", d.AuthorizationLevel)
	}

	f.svc.notifier.Wait()
	if len(f.email.Calls()) != 1 {
		t.Errorf("emails = %d, want 1 verification notice", len(f.email.Calls()))
	}
}

func TestVerifyRejectionNeedsReason(t *testing.T) {
	f := newFixture(t)
	pending, _ := f.svc.Register(context.Background(), uuid.New(), RegisterParams{LicenseNumber: "KA-90211"})

	if _, err := f.svc.Verify(context.Background(), pending.ID, VerifyParams{Approve: false}); err == nil {
		t.Fatal("rejection without a reason should fail")
	}

	d, err := f.svc.Verify(context.Background(), pending.ID, VerifyParams{Approve: false, Reason: "license lookup failed"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d.IsVerified || d.RejectionReason == "" {
		t.Error("rejection should record the reason and leave the doctor unverified")
	}
}

func TestAddConsultationDeniedWithoutWriteRights(t *testing.T) {
	f := newFixture(t)
	f.grant(t, consent.AccessQRQuick, true, false, false)

	_, err := f.svc.AddConsultation(context.Background(), f.doc, f.patient.HealthID,
		ConsultationParams{Diagnosis: "Migraine"}, "10.0.0.3")
	if err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(f.repo.consultations) != 0 {
		t.Error("denied write must not persist a consultation")
	}
	if f.logbook.count(audit.ActionCreateConsultation) != 1 {
		t.Error("the denied attempt must be logged exactly once")
	}
}

func TestAddConsultationWithFullGrant(t *testing.T) {
	f := newFixture(t)
	f.grant(t, consent.AccessOTPFull, true, true, true)

	c, err := f.svc.AddConsultation(context.Background(), f.doc, f.patient.HealthID,
		ConsultationParams{Symptoms: "Headache", Diagnosis: "Migraine", Prescription: "Sumatriptan 50mg"}, "10.0.0.3")
	if err != nil {
		t.Fatalf("AddConsultation: %v", err)
	}
	if c.PatientID != f.patient.ID || c.DoctorID != f.doc.ID {
		t.Error("consultation should bind the doctor and patient")
	}
	if f.logbook.count(audit.ActionCreateConsultation) != 1 {
		t.Error("the write must be logged exactly once")
	}
}

func TestRecordsReadGatedOnViewRecords(t *testing.T) {
	f := newFixture(t)
	f.grant(t, consent.AccessQRQuick, false, false, false)

	_, _, err := f.svc.RecordsForDoctor(context.Background(), f.doc, f.patient.HealthID, 20, 0, "")
	if err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if f.logbook.count(audit.ActionViewRecords) != 1 {
		t.Error("the denied read must be logged exactly once")
	}

	// Quick access carries record-read rights by default.
	f.grant(t, consent.AccessQRQuick, true, false, false)
	if _, _, err := f.svc.RecordsForDoctor(context.Background(), f.doc, f.patient.HealthID, 20, 0, ""); err != nil {
		t.Fatalf("RecordsForDoctor with read rights: %v", err)
	}
	if f.logbook.count(audit.ActionViewRecords) != 2 {
		t.Error("the allowed read must also be logged")
	}
}
