package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// JobRepository defines the interface for job storage
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, status *model.JobStatus) ([]*model.Job, error)
	ListByCreator(ctx context.Context, recruiterID string) ([]*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	UpdateStatus(ctx context.Context, id string, status model.JobStatus) error
	Delete(ctx context.Context, id string) error
}

// JobService handles job posting business logic
type JobService struct {
	repo JobRepository
}

// JobServiceConfig holds configuration for the job service
type JobServiceConfig struct {
	JobRepo JobRepository
}

// NewJobService creates a new job service
func NewJobService(cfg JobServiceConfig) *JobService {
	return &JobService{repo: cfg.JobRepo}
}

// Create posts a new open job owned by the recruiter
func (s *JobService) Create(ctx context.Context, recruiterID string, req *model.CreateJobRequest) (*model.Job, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	job := &model.Job{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		CompanyID:   strings.TrimSpace(req.CompanyID),
		Status:      model.JobStatusOpen,
		CreatedByID: recruiterID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs, optionally filtered by status
func (s *JobService) List(ctx context.Context, status *model.JobStatus) ([]*model.Job, error) {
	if status != nil && !status.IsValid() {
		return nil, model.NewValidationError([]model.FieldError{
			{Field: "status", Message: "status must be 'open' or 'closed'"},
		})
	}
	return s.repo.List(ctx, status)
}

// Get returns a job by ID
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// IsOwner reports whether userID created the job. A missing job returns ErrJobNotFound.
func (s *JobService) IsOwner(ctx context.Context, jobID, userID string) (bool, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.CreatedByID == userID, nil
}

// Update replaces title, description and company of an owned job
func (s *JobService) Update(ctx context.Context, actorID, jobID string, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.owned(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	job.Title = strings.TrimSpace(req.Title)
	job.Description = req.Description
	job.CompanyID = strings.TrimSpace(req.CompanyID)
	if err := s.repo.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SetStatus opens or closes an owned job
func (s *JobService) SetStatus(ctx context.Context, actorID, jobID string, req *model.UpdateJobStatusRequest) (*model.Job, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}
	job, err := s.owned(ctx, actorID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == req.Status {
		return job, nil
	}

	if err := s.repo.UpdateStatus(ctx, jobID, req.Status); err != nil {
		return nil, err
	}
	job.Status = req.Status
	return job, nil
}

// Delete removes an owned job. A job that has applications keeps its audit
// trail, so it can only be closed.
func (s *JobService) Delete(ctx context.Context, actorID, jobID string) error {
	if _, err := s.owned(ctx, actorID, jobID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, jobID); err != nil {
		if errors.Is(err, database.ErrInUse) {
			return ErrJobHasApplications
		}
		return err
	}
	return nil
}

func (s *JobService) owned(ctx context.Context, actorID, jobID string) (*model.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CreatedByID != actorID {
		return nil, ErrNotJobOwner
	}
	return job, nil
}
