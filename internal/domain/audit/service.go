package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service records and queries access log entries. Recording is deliberately
// synchronous: callers must treat a failed audit write as a failure of the
// operation being audited, so no patient data ever leaves the system
// unaudited.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordParams describes one access-relevant event.
type RecordParams struct {
	ActorID   *uuid.UUID
	PatientID *uuid.UUID
	Action    Action
	Details   string
	IPAddress string
}

// Record appends one entry. The returned error must propagate: the calling
// operation is aborted when its audit entry cannot be written.
func (s *Service) Record(ctx context.Context, p RecordParams) (*Entry, error) {
	if !p.Action.Valid() {
		return nil, fmt.Errorf("invalid audit action: %q", p.Action)
	}

	e := &Entry{
		ActorID:   p.ActorID,
		PatientID: p.PatientID,
		Action:    p.Action,
		Details:   p.Details,
		IPAddress: p.IPAddress,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append access log: %w", err)
	}
	return e, nil
}

// HistoryForPatient returns a patient's access history, newest first.
func (s *Service) HistoryForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Entry, error) {
	return s.repo.ListByPatient(ctx, patientID, limit)
}

// Search is the administrative query surface over the whole log.
func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
