package service

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// DefaultTransitionAttempts bounds re-reads after a stale revision
const DefaultTransitionAttempts = 3

// ApplicationRepository defines the interface for application storage.
// The *WithHistory methods write the application and its history row as
// one atomic unit.
type ApplicationRepository interface {
	GetByID(ctx context.Context, id string) (*model.Application, error)
	GetByCandidateAndJob(ctx context.Context, candidateID, jobID string) (*model.Application, error)
	CreateWithHistory(ctx context.Context, app *model.Application, entry *model.HistoryEntry) error
	TransitionWithHistory(ctx context.Context, app *model.Application, expectedRevision int, entry *model.HistoryEntry) error
	ListByJob(ctx context.Context, jobID string) ([]*model.Application, error)
	ListByCandidate(ctx context.Context, candidateID string) ([]*model.Application, error)
	ListByJobs(ctx context.Context, jobIDs []string) ([]*model.Application, error)
}

// JobLookup is the read side of job storage
type JobLookup interface {
	GetByID(ctx context.Context, id string) (*model.Job, error)
}

// UserLookup resolves users by id
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Dispatcher receives committed stage events. Implementations must not
// block for long and must not report failures back to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.StageEvent)
}

// LifecycleManager creates applications and moves them between stages,
// writing one history row per change
type LifecycleManager struct {
	apps        ApplicationRepository
	jobs        JobLookup
	users       UserLookup
	dispatcher  Dispatcher
	policy      model.TransitionPolicy
	maxAttempts int
	logger      *slog.Logger
}

// LifecycleManagerConfig holds configuration for the lifecycle manager
type LifecycleManagerConfig struct {
	ApplicationRepo ApplicationRepository
	JobRepo         JobLookup
	UserRepo        UserLookup
	Dispatcher      Dispatcher             // optional
	Policy          model.TransitionPolicy // defaults to strict
	MaxAttempts     int                    // defaults to DefaultTransitionAttempts
	Logger          *slog.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(cfg LifecycleManagerConfig) *LifecycleManager {
	policy := cfg.Policy
	if !policy.IsValid() {
		policy = model.TransitionPolicyStrict
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultTransitionAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LifecycleManager{
		apps:        cfg.ApplicationRepo,
		jobs:        cfg.JobRepo,
		users:       cfg.UserRepo,
		dispatcher:  cfg.Dispatcher,
		policy:      policy,
		maxAttempts: attempts,
		logger:      logger,
	}
}

// Policy returns the active transition policy
func (m *LifecycleManager) Policy() model.TransitionPolicy {
	return m.policy
}

// CreateApplication applies a candidate to an open job
func (m *LifecycleManager) CreateApplication(ctx context.Context, candidateID, jobID string) (*model.Application, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.IsOpen() {
		return nil, ErrJobNotOpen
	}

	existing, err := m.apps.GetByCandidateAndJob(ctx, candidateID, jobID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyApplied
	}

	app := &model.Application{
		CandidateID: candidateID,
		JobID:       jobID,
		Stage:       model.InitialStage,
		Revision:    1,
	}
	entry := &model.HistoryEntry{
		NewStage:    model.InitialStage,
		ChangedByID: candidateID,
		Seq:         1,
	}

	if err := m.apps.CreateWithHistory(ctx, app, entry); err != nil {
		// Lost a race with a concurrent apply
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrAlreadyApplied
		}
		return nil, err
	}

	m.logger.Info("application created",
		slog.String("application_id", app.ID),
		slog.String("job_id", jobID),
		slog.String("candidate_id", candidateID),
	)

	m.dispatch(ctx, app, job, entry)
	return app, nil
}

// TransitionStage moves an application to newStage on behalf of actorID
func (m *LifecycleManager) TransitionStage(ctx context.Context, applicationID string, newStage model.Stage, actorID string) (*model.Application, error) {
	if !newStage.IsValid() {
		return nil, errors.Wrapf(ErrInvalidStage, "%q", string(newStage))
	}

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		app, err := m.apps.GetByID(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		if app == nil {
			return nil, ErrApplicationNotFound
		}

		oldStage := app.Stage
		if !m.policy.CanTransition(oldStage, newStage) {
			return nil, errors.Wrapf(ErrIllegalTransition, "%s to %s", oldStage, newStage)
		}

		expected := app.Revision
		app.Stage = newStage
		app.Revision = expected + 1
		entry := &model.HistoryEntry{
			OldStage:    &oldStage,
			NewStage:    newStage,
			ChangedByID: actorID,
			Seq:         app.Revision,
		}

		err = m.apps.TransitionWithHistory(ctx, app, expected, entry)
		if errors.Is(err, database.ErrConflict) {
			m.logger.Debug("stale revision, retrying transition",
				slog.String("application_id", applicationID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		m.logger.Info("application stage changed",
			slog.String("application_id", app.ID),
			slog.String("old_stage", string(oldStage)),
			slog.String("new_stage", string(newStage)),
			slog.String("actor_id", actorID),
		)

		m.dispatch(ctx, app, nil, entry)
		return app, nil
	}

	return nil, ErrConcurrentTransition
}

// dispatch hands a committed change to the dispatcher. Lookup failures only
// degrade the event; nothing here can fail the lifecycle operation.
func (m *LifecycleManager) dispatch(ctx context.Context, app *model.Application, job *model.Job, entry *model.HistoryEntry) {
	if m.dispatcher == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("dispatcher panicked",
				slog.String("application_id", app.ID),
				slog.Any("panic", r),
			)
		}
	}()

	event := model.StageEvent{
		ApplicationID: app.ID,
		CandidateID:   app.CandidateID,
		JobID:         app.JobID,
		OldStage:      entry.OldStage,
		NewStage:      entry.NewStage,
		ActorID:       entry.ChangedByID,
		OccurredAt:    entry.ChangedOn,
	}

	if job == nil {
		var err error
		if job, err = m.jobs.GetByID(ctx, app.JobID); err != nil {
			m.logger.Warn("job lookup for notification failed",
				slog.String("job_id", app.JobID),
				slog.String("error", err.Error()),
			)
		}
	}
	if job != nil {
		event.JobTitle = job.Title
	}

	if m.users != nil {
		candidate, err := m.users.GetByID(ctx, app.CandidateID)
		if err != nil {
			m.logger.Warn("recipient lookup failed",
				slog.String("candidate_id", app.CandidateID),
				slog.String("error", err.Error()),
			)
		}
		if candidate != nil {
			event.RecipientEmail = candidate.Email
			event.RecipientName = candidate.FullName
		}
	}

	m.dispatcher.Dispatch(ctx, event)
}
