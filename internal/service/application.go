package service

import (
	"context"

	"github.com/forgo/hiretrack/api/internal/model"
)

// UserBatchLookup resolves many users at once
type UserBatchLookup interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
}

// ApplicationService answers read-side application queries
type ApplicationService struct {
	apps  ApplicationRepository
	jobs  JobRepository
	users UserBatchLookup
}

// ApplicationServiceConfig holds configuration for the application service
type ApplicationServiceConfig struct {
	ApplicationRepo ApplicationRepository
	JobRepo         JobRepository
	UserRepo        UserBatchLookup
}

// NewApplicationService creates a new application service
func NewApplicationService(cfg ApplicationServiceConfig) *ApplicationService {
	return &ApplicationService{
		apps:  cfg.ApplicationRepo,
		jobs:  cfg.JobRepo,
		users: cfg.UserRepo,
	}
}

// Get returns an application by ID
func (s *ApplicationService) Get(ctx context.Context, applicationID string) (*model.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

// ListForJob lists a job's applications, oldest first. The actor must own the job.
func (s *ApplicationService) ListForJob(ctx context.Context, actorID, jobID string) ([]*model.Application, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.CreatedByID != actorID {
		return nil, ErrNotJobOwner
	}
	return s.apps.ListByJob(ctx, jobID)
}

// ListMine lists the candidate's own applications, newest first
func (s *ApplicationService) ListMine(ctx context.Context, candidateID string) ([]*model.Application, error) {
	return s.apps.ListByCandidate(ctx, candidateID)
}

// ListForRecruiter returns every application on the recruiter's jobs joined
// with job title and candidate identity, newest first
func (s *ApplicationService) ListForRecruiter(ctx context.Context, recruiterID string) ([]*model.ApplicationSummary, error) {
	jobs, err := s.jobs.ListByCreator(ctx, recruiterID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []*model.ApplicationSummary{}, nil
	}

	titles := make(map[string]string, len(jobs))
	jobIDs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		titles[j.ID] = j.Title
		jobIDs = append(jobIDs, j.ID)
	}

	apps, err := s.apps.ListByJobs(ctx, jobIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	candidateIDs := make([]string, 0, len(apps))
	for _, a := range apps {
		if !seen[a.CandidateID] {
			seen[a.CandidateID] = true
			candidateIDs = append(candidateIDs, a.CandidateID)
		}
	}
	candidates, err := s.users.GetByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]*model.ApplicationSummary, 0, len(apps))
	for _, a := range apps {
		row := &model.ApplicationSummary{
			ApplicationID: a.ID,
			JobID:         a.JobID,
			JobTitle:      titles[a.JobID],
			CandidateID:   a.CandidateID,
			Stage:         a.Stage,
			CreatedOn:     a.CreatedOn,
			UpdatedOn:     a.UpdatedOn,
		}
		if c, ok := candidates[a.CandidateID]; ok {
			row.CandidateName = c.FullName
			row.CandidateEmail = c.Email
		}
		summaries = append(summaries, row)
	}
	return summaries, nil
}
