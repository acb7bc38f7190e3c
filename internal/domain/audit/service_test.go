package audit

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	entries []*Entry
}

func (m *mockRepo) Append(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Entry, error) {
	var result []*Entry
	for _, e := range m.entries {
		if e.PatientID != nil && *e.PatientID == patientID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return m.entries, len(m.entries), nil
}

func TestRecordAppendsEntry(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	actor := uuid.New()
	patient := uuid.New()
	e, err := svc.Record(context.Background(), RecordParams{
		ActorID:   &actor,
		PatientID: &patient,
		Action:    ActionViewProfile,
		Details:   "Viewed profile of HID-AB12CD34",
		IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected entry ID to be assigned")
	}
	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	svc := NewService(&mockRepo{})
	if _, err := svc.Record(context.Background(), RecordParams{Action: "DELETE_EVERYTHING"}); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestHistoryForPatientFiltersAndCaps(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	patient := uuid.New()
	other := uuid.New()
	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), RecordParams{PatientID: &patient, Action: ActionViewRecords})
	}
	svc.Record(context.Background(), RecordParams{PatientID: &other, Action: ActionViewRecords})

	got, err := svc.HistoryForPatient(context.Background(), patient, 3)
	if err != nil {
		t.Fatalf("HistoryForPatient: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("entries = %d, want cap of 3", len(got))
	}
	for _, e := range got {
		if *e.PatientID != patient {
			t.Error("entry for wrong patient in history")
		}
	}
}

func TestActionValid(t *testing.T) {
	for _, a := range []Action{ActionViewProfile, ActionLogin, ActionGrantAccess, ActionRevokeAccess, ActionCreateHealthID} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if Action("").Valid() || Action("VIEW_ALL").Valid() {
		t.Error("unknown actions should be invalid")
	}
}
