package notification

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateOTPCode, map[string]string{
		"doctor_name": "Mehta",
		"otp_code":    "482913",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "482913") {
		t.Errorf("body missing code: %q", body)
	}
	if !strings.Contains(body, "Mehta") {
		t.Errorf("body missing doctor name: %q", body)
	}
	if subject == "" {
		t.Error("expected non-empty subject")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSendTemplateRoutesByChannel(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	d := NewDispatcher(email, sms, NewTemplateEngine(), testLogger())

	if _, err := d.SendTemplate(context.Background(), TemplateAccessGranted, map[string]string{
		"doctor_name": "Rao", "access_type": "QR_QUICK", "health_id": "HID-AB12CD34",
	}, "patient@example.com"); err != nil {
		t.Fatalf("SendTemplate email: %v", err)
	}
	if _, err := d.SendTemplate(context.Background(), TemplateOTPCode, map[string]string{
		"doctor_name": "Rao", "otp_code": "123456",
	}, "+15550001111"); err != nil {
		t.Fatalf("SendTemplate sms: %v", err)
	}

	if len(email.Calls()) != 1 {
		t.Errorf("email calls = %d, want 1", len(email.Calls()))
	}
	if len(sms.Calls()) != 1 {
		t.Errorf("sms calls = %d, want 1", len(sms.Calls()))
	}
}

func TestSendRecordsFailure(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	d := NewDispatcher(email, &MockSMSSender{}, NewTemplateEngine(), testLogger())

	n := &Notification{Type: TypeEmail, Recipient: "p@example.com", Subject: "s", Body: "b"}
	if err := d.Send(context.Background(), n); err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" || n.Error == "" {
		t.Errorf("notification not marked failed: %+v", n)
	}
	if d.Stats()["failed"] != 1 {
		t.Errorf("Stats = %v, want one failed", d.Stats())
	}
}

func TestDispatchAsyncNeverPanicsOnFailure(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	d := NewDispatcher(email, &MockSMSSender{}, NewTemplateEngine(), testLogger())

	d.DispatchAsync(TemplateAccessRevoked, map[string]string{"health_id": "HID-X"}, "doc@example.com")
	d.Wait()

	if len(email.Calls()) != 1 {
		t.Errorf("email calls = %d, want 1", len(email.Calls()))
	}
}
