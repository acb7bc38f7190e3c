package consent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pulseid/pulseid/internal/platform/auth"
)

func (f *fixture) handler() *Handler {
	return NewHandler(f.svc, f.dir)
}

func postJSON(t *testing.T, userID uuid.UUID, role, path, body string, fn echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), userID, role))
	rec := httptest.NewRecorder()
	return rec, fn(e.NewContext(req, rec))
}

func getJSON(t *testing.T, userID uuid.UUID, role, path string, fn echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(auth.WithUser(req.Context(), userID, role))
	rec := httptest.NewRecorder()
	return rec, fn(e.NewContext(req, rec))
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("err = %v, want *echo.HTTPError", err)
	}
	return he.Code
}

func TestCreateGrantUnknownDoctorIsBadRequest(t *testing.T) {
	f := newFixture(t)
	h := f.handler()

	body := `{"doctor_id":"` + uuid.NewString() + `","access_type":"QR_QUICK"}`
	_, err := postJSON(t, f.patient.UserID, "PATIENT", "/api/v1/sharing", body, h.CreateGrant)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown doctor", code)
	}
}

func TestCreateGrantUnverifiedDoctorIsBadRequest(t *testing.T) {
	f := newFixture(t)
	f.doctor.Verified = false
	h := f.handler()

	body := `{"doctor_id":"` + f.doctor.ID.String() + `","access_type":"QR_QUICK"}`
	_, err := postJSON(t, f.patient.UserID, "PATIENT", "/api/v1/sharing", body, h.CreateGrant)
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unverified doctor", code)
	}
}

func TestRequestOTPUnknownHealthIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	h := f.handler()

	body := `{"health_id":"HID-DEADBEEF"}`
	_, err := postJSON(t, f.doctor.UserID, "DOCTOR", "/api/v1/otp/request", body, h.RequestOTP)
	if code := httpCode(t, err); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown health ID", code)
	}
}

func TestVerifyOTPExpiredCodeIsBadRequest(t *testing.T) {
	f := newFixture(t)
	h := f.handler()
	ctx := context.Background()

	if err := f.svc.RequestOTP(ctx, f.doctor.ID, f.patient.HealthID, ""); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := f.lastSMSCode(t)
	f.advance(11 * time.Minute)

	body := `{"health_id":"` + f.patient.HealthID + `","otp_code":"` + code + `"}`
	_, err := postJSON(t, f.doctor.UserID, "DOCTOR", "/api/v1/otp/verify", body, h.VerifyOTP)
	if got := httpCode(t, err); got != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an expired code", got)
	}
}

func TestSharingHistoryReturnsAccessLogEntries(t *testing.T) {
	f := newFixture(t)
	h := f.handler()
	ctx := context.Background()

	g, err := f.svc.Grant(ctx, GrantParams{PatientID: f.patient.ID, DoctorID: f.doctor.ID, AccessType: AccessQRQuick})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if _, err := f.svc.Revoke(ctx, g.ID, f.patient.ID, ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	rec, err := getJSON(t, f.patient.UserID, "PATIENT", "/api/v1/sharing-history", h.SharingHistory)
	if err != nil {
		t.Fatalf("SharingHistory: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		History []map[string]interface{} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.History) != 2 {
		t.Fatalf("history entries = %d, want the grant and the revocation", len(body.History))
	}
	actions := map[string]bool{}
	for _, e := range body.History {
		actions[e["action"].(string)] = true
	}
	if !actions["GRANT_ACCESS"] || !actions["REVOKE_ACCESS"] {
		t.Errorf("history actions = %v, want access-log entries, not grant rows", actions)
	}
}
