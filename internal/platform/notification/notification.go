// Package notification delivers grant, revoke, and OTP events to patients and
// doctors over email or SMS. Delivery is fire-and-forget: the authorizing
// operation never waits on, or fails because of, the transport.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type is the channel used to deliver a notification.
type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
)

// Notification is a single outbound message.
type Notification struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Type    Type   `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// Built-in template IDs used by the consent ledger and OTP engine.
const (
	TemplateAccessGranted     = "access-granted"
	TemplateAccessRevoked     = "access-revoked"
	TemplateFullAccessGranted = "full-access-granted"
	TemplateOTPCode           = "otp-code"
	TemplateDoctorVerified    = "doctor-verified"
)

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAccessGranted,
			Name:    "Access Granted",
			Subject: "Access to your health records was granted",
			Body:    "Dr. {{doctor_name}} was granted {{access_type}} access to your records (Health ID {{health_id}}). If you did not authorize this, revoke it from your dashboard.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateAccessRevoked,
			Name:    "Access Revoked",
			Subject: "Your access to a patient's records was revoked",
			Body:    "Your access to patient {{health_id}} has been revoked. Any further reads of this record will be denied.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateFullAccessGranted,
			Name:    "Full Access Granted",
			Subject: "Full record access confirmed",
			Body:    "Dr. {{doctor_name}} now has full access to your records (Health ID {{health_id}}) after OTP verification.",
			Type:    TypeEmail,
		},
		{
			ID:      TemplateOTPCode,
			Name:    "OTP Code",
			Subject: "Your one-time access code",
			Body:    "Dr. {{doctor_name}} is requesting full access to your health records. Share the code {{otp_code}} with them ONLY if you approve. It expires in 10 minutes.",
			Type:    TypeSMS,
		},
		{
			ID:      TemplateDoctorVerified,
			Name:    "Doctor Verified",
			Subject: "Your PulseID account has been verified",
			Body:    "Your doctor registration has been approved. You can now scan patient QR codes and request record access.",
			Type:    TypeEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) templateType(templateID string) Type {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Type
	}
	return TypeEmail
}

// Dispatcher orchestrates rendering, sending, and recording of notifications.
type Dispatcher struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
	logger      zerolog.Logger

	mu   sync.RWMutex
	sent map[string]*Notification
	wg   sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
		logger:      logger,
		sent:        make(map[string]*Notification),
	}
}

// Send dispatches a notification synchronously and records the result.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	var sendErr error
	switch n.Type {
	case TypeEmail:
		sendErr = d.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		sendErr = d.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported notification type: %s", n.Type)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	d.mu.Lock()
	d.sent[n.ID] = n
	d.mu.Unlock()

	return sendErr
}

// SendTemplate renders a template and sends the resulting notification.
func (d *Dispatcher) SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Type:       d.templates.templateType(templateID),
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}
	if err := d.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// DispatchAsync sends a templated notification on a background goroutine.
// Failures are logged and swallowed: delivery problems must never fail or
// delay the operation that triggered them.
func (d *Dispatcher) DispatchAsync(templateID string, data map[string]string, recipient string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := d.SendTemplate(ctx, templateID, data, recipient); err != nil {
			d.logger.Warn().
				Err(err).
				Str("template", templateID).
				Str("recipient", recipient).
				Msg("notification dispatch failed")
		}
	}()
}

// Wait blocks until all in-flight async dispatches have completed. Used by
// tests and graceful shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Get retrieves a recorded notification by ID.
func (d *Dispatcher) Get(id string) (*Notification, error) {
	d.mu.RLock()
	n, ok := d.sent[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// Stats returns counts of recorded notifications grouped by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range d.sent {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// ConsoleSender logs messages instead of delivering them. It stands in for
// the SMS/email gateway in development; the OTP side channel in particular
// ends up in the server log.
type ConsoleSender struct {
	Logger zerolog.Logger
}

func (s *ConsoleSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Str("body", body).Msg("outbound notification")
	return nil
}

func (s *ConsoleSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("channel", "sms").Str("to", to).Str("body", body).Msg("outbound notification")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
