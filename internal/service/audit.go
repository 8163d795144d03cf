package service

import (
	"context"

	"github.com/forgo/hiretrack/api/internal/model"
)

// HistoryRepository defines the interface for the append-only audit log
type HistoryRepository interface {
	Append(ctx context.Context, entry *model.HistoryEntry) error
	ListByApplication(ctx context.Context, applicationID string) ([]*model.HistoryEntry, error)
}

// AuditService exposes an application's stage history
type AuditService struct {
	apps    ApplicationRepository
	history HistoryRepository
}

// AuditServiceConfig holds configuration for the audit service
type AuditServiceConfig struct {
	ApplicationRepo ApplicationRepository
	HistoryRepo     HistoryRepository
}

// NewAuditService creates a new audit service
func NewAuditService(cfg AuditServiceConfig) *AuditService {
	return &AuditService{
		apps:    cfg.ApplicationRepo,
		history: cfg.HistoryRepo,
	}
}

// History returns the full stage chain of an application, oldest first
func (s *AuditService) History(ctx context.Context, applicationID string) ([]*model.HistoryEntry, error) {
	if _, err := s.load(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.history.ListByApplication(ctx, applicationID)
}

// CandidateHistory returns the chain only if the application belongs to candidateID
func (s *AuditService) CandidateHistory(ctx context.Context, candidateID, applicationID string) ([]*model.HistoryEntry, error) {
	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.CandidateID != candidateID {
		return nil, ErrNotApplicationOwner
	}
	return s.history.ListByApplication(ctx, applicationID)
}

func (s *AuditService) load(ctx context.Context, applicationID string) (*model.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}
