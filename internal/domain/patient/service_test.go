package patient

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	contacts map[uuid.UUID]*EmergencyContact
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		contacts: make(map[uuid.UUID]*EmergencyContact),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.patients[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetByHealthID(_ context.Context, healthID string) (*Patient, error) {
	for _, p := range m.patients {
		if p.HealthID == healthID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) AddContact(_ context.Context, c *EmergencyContact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *mockRepo) ListContacts(_ context.Context, patientID uuid.UUID) ([]*EmergencyContact, error) {
	var out []*EmergencyContact
	for _, c := range m.contacts {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) RemoveContact(_ context.Context, patientID, contactID uuid.UUID) error {
	c, ok := m.contacts[contactID]
	if !ok || c.PatientID != patientID {
		return pgx.ErrNoRows
	}
	delete(m.contacts, contactID)
	return nil
}

var healthIDPattern = regexp.MustCompile(`^HID-[0-9A-F]{8}$`)

func TestCreateProfileIssuesHealthID(t *testing.T) {
	svc := NewService(newMockRepo(), "https://pulseid.example.com/")

	p, err := svc.CreateProfile(context.Background(), uuid.New(), ProfileParams{BloodGroup: "O+"})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if !healthIDPattern.MatchString(p.HealthID) {
		t.Errorf("health ID %q does not match HID-XXXXXXXX", p.HealthID)
	}
	want := "https://pulseid.example.com/api/v1/patients/" + p.HealthID
	if p.QRPayload != want {
		t.Errorf("qr payload = %q, want %q", p.QRPayload, want)
	}
}

func TestHealthIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewHealthID()
		if seen[id] {
			t.Fatalf("duplicate health ID %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestCreateProfileRejectsBadBloodGroup(t *testing.T) {
	svc := NewService(newMockRepo(), "https://pulseid.example.com")
	if _, err := svc.CreateProfile(context.Background(), uuid.New(), ProfileParams{BloodGroup: "Z+"}); err == nil {
		t.Fatal("expected error for invalid blood group")
	}
}

func TestUpdateProfileKeepsHealthID(t *testing.T) {
	svc := NewService(newMockRepo(), "https://pulseid.example.com")
	ctx := context.Background()

	p, err := svc.CreateProfile(ctx, uuid.New(), ProfileParams{})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, p.ID, ProfileParams{BloodGroup: "AB-", Allergies: "Penicillin"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.HealthID != p.HealthID || updated.QRPayload != p.QRPayload {
		t.Error("update must not touch the health ID or QR payload")
	}
	if updated.Allergies != "Penicillin" {
		t.Error("update should apply the new clinical fields")
	}
}

func TestViewRedactsForBasicLevel(t *testing.T) {
	p := &Patient{
		ID:                uuid.New(),
		HealthID:          "HID-AB12CD34",
		FullName:          "Asha Rao",
		Email:             "asha@example.com",
		BloodGroup:        "O+",
		Allergies:         "Penicillin",
		ChronicConditions: "Asthma",
	}

	basic := p.View("BASIC")
	for _, hidden := range []string{"email", "blood_group", "allergies", "chronic_conditions", "organ_donor"} {
		if _, ok := basic[hidden]; ok {
			t.Errorf("BASIC view must not expose %q", hidden)
		}
	}
	if basic["full_name"] != "Asha Rao" || basic["health_id"] != "HID-AB12CD34" {
		t.Error("BASIC view should keep identity fields")
	}

	for _, level := range []string{"STANDARD", "FULL"} {
		full := p.View(level)
		if full["allergies"] != "Penicillin" || full["blood_group"] != "O+" {
			t.Errorf("%s view should expose the clinical profile", level)
		}
	}
}

func TestEmergencyContactLifecycle(t *testing.T) {
	svc := NewService(newMockRepo(), "https://pulseid.example.com")
	ctx := context.Background()

	p, _ := svc.CreateProfile(ctx, uuid.New(), ProfileParams{})
	contact := &EmergencyContact{PatientID: p.ID, Name: "Ravi Rao", Phone: "+919876543210"}
	if err := svc.AddEmergencyContact(ctx, contact); err != nil {
		t.Fatalf("AddEmergencyContact: %v", err)
	}

	contacts, err := svc.EmergencyContacts(ctx, p.ID)
	if err != nil || len(contacts) != 1 {
		t.Fatalf("contacts = %v (err %v), want 1", contacts, err)
	}

	if err := svc.RemoveEmergencyContact(ctx, p.ID, contact.ID); err != nil {
		t.Fatalf("RemoveEmergencyContact: %v", err)
	}
	if err := svc.RemoveEmergencyContact(ctx, p.ID, contact.ID); err != ErrNotFound {
		t.Fatalf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestValidBloodGroup(t *testing.T) {
	for _, bg := range []string{"", "A+", "O-", "AB+"} {
		if !ValidBloodGroup(bg) {
			t.Errorf("%q should be valid", bg)
		}
	}
	for _, bg := range []string{"C+", "o+", strings.Repeat("A", 10)} {
		if ValidBloodGroup(bg) {
			t.Errorf("%q should be invalid", bg)
		}
	}
}
