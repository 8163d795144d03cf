package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// UserRepository is the in-memory user table
type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := r.s.usersByEmail[email]; exists {
		return errors.Wrap(database.ErrDuplicate, "email already exists")
	}

	now := r.s.now()
	user.ID = newID("user")
	user.Email = email
	user.CreatedOn = now
	user.UpdatedOn = now

	r.s.users[user.ID] = copyUser(user)
	r.s.usersByEmail[email] = user.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if u, ok := r.s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if id, ok := r.s.usersByEmail[strings.ToLower(email)]; ok {
		return copyUser(r.s.users[id]), nil
	}
	return nil, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		u, _ := r.GetByID(ctx, id)
		if u != nil {
			out[id] = u
		}
	}
	return out, nil
}

// JobRepository is the in-memory job table
type JobRepository struct{ s *Store }

func (r *JobRepository) Create(_ context.Context, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	job.ID = newID("job")
	job.CreatedOn = now
	job.UpdatedOn = now
	r.s.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *JobRepository) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if j, ok := r.s.jobs[id]; ok {
		return copyJob(j), nil
	}
	return nil, nil
}

func (r *JobRepository) List(_ context.Context, status *model.JobStatus) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool {
		return status == nil || j.Status == *status
	}), nil
}

func (r *JobRepository) ListByCreator(_ context.Context, recruiterID string) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool {
		return j.CreatedByID == recruiterID
	}), nil
}

func (r *JobRepository) filter(keep func(*model.Job) bool) []*model.Job {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	jobs := make([]*model.Job, 0)
	for _, j := range r.s.jobs {
		if keep(j) {
			jobs = append(jobs, copyJob(j))
		}
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedOn.After(jobs[k].CreatedOn)
	})
	return jobs
}

func (r *JobRepository) Update(_ context.Context, job *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.jobs[job.ID]
	if !ok {
		return database.ErrNotFound
	}
	stored.Title = job.Title
	stored.Description = job.Description
	stored.CompanyID = job.CompanyID
	stored.UpdatedOn = r.s.now()
	job.UpdatedOn = stored.UpdatedOn
	return nil
}

func (r *JobRepository) UpdateStatus(_ context.Context, id string, status model.JobStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	stored.Status = status
	stored.UpdatedOn = r.s.now()
	return nil
}

func (r *JobRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.apps {
		if a.JobID == id {
			return errors.Wrap(database.ErrInUse, database.ThrowJobHasApplications)
		}
	}
	delete(r.s.jobs, id)
	return nil
}

// ApplicationRepository is the in-memory application table. Stage writes and
// their history rows are staged and applied under one lock.
type ApplicationRepository struct{ s *Store }

func (r *ApplicationRepository) CreateWithHistory(_ context.Context, app *model.Application, entry *model.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey(app.CandidateID, app.JobID)
	if _, exists := r.s.appsByPair[key]; exists {
		return errors.Wrap(database.ErrDuplicate, "application_candidate_job")
	}

	now := r.s.now()
	stagedApp := copyApp(app)
	stagedApp.ID = newID("application")
	stagedApp.CreatedOn = now
	stagedApp.UpdatedOn = now

	if err := r.s.fault(StepApplicationStaged); err != nil {
		return err
	}

	stagedEntry := copyEntry(entry)
	stagedEntry.ID = newID("application_history")
	stagedEntry.ApplicationID = stagedApp.ID
	stagedEntry.ChangedOn = now

	r.s.apps[stagedApp.ID] = stagedApp
	r.s.appsByPair[key] = stagedApp.ID
	r.s.history[stagedApp.ID] = append(r.s.history[stagedApp.ID], stagedEntry)

	*app = *copyApp(stagedApp)
	*entry = *copyEntry(stagedEntry)
	return nil
}

func (r *ApplicationRepository) TransitionWithHistory(_ context.Context, app *model.Application, expectedRevision int, entry *model.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.apps[app.ID]
	if !ok || stored.Revision != expectedRevision {
		return errors.Wrap(database.ErrConflict, database.ThrowRevisionConflict)
	}

	now := r.s.now()
	stagedApp := copyApp(stored)
	stagedApp.Stage = app.Stage
	stagedApp.Revision = app.Revision
	stagedApp.UpdatedOn = now

	if err := r.s.fault(StepApplicationStaged); err != nil {
		return err
	}

	stagedEntry := copyEntry(entry)
	stagedEntry.ID = newID("application_history")
	stagedEntry.ApplicationID = app.ID
	stagedEntry.ChangedOn = now

	r.s.apps[app.ID] = stagedApp
	r.s.history[app.ID] = append(r.s.history[app.ID], stagedEntry)

	app.UpdatedOn = now
	*entry = *copyEntry(stagedEntry)
	return nil
}

func (r *ApplicationRepository) GetByID(_ context.Context, id string) (*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if a, ok := r.s.apps[id]; ok {
		return copyApp(a), nil
	}
	return nil, nil
}

func (r *ApplicationRepository) GetByCandidateAndJob(_ context.Context, candidateID, jobID string) (*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if id, ok := r.s.appsByPair[pairKey(candidateID, jobID)]; ok {
		return copyApp(r.s.apps[id]), nil
	}
	return nil, nil
}

func (r *ApplicationRepository) ListByJob(_ context.Context, jobID string) ([]*model.Application, error) {
	apps := r.filter(func(a *model.Application) bool { return a.JobID == jobID })
	sortApps(apps, false)
	return apps, nil
}

func (r *ApplicationRepository) ListByCandidate(_ context.Context, candidateID string) ([]*model.Application, error) {
	apps := r.filter(func(a *model.Application) bool { return a.CandidateID == candidateID })
	sortApps(apps, true)
	return apps, nil
}

func (r *ApplicationRepository) ListByJobs(_ context.Context, jobIDs []string) ([]*model.Application, error) {
	wanted := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		wanted[id] = true
	}
	apps := r.filter(func(a *model.Application) bool { return wanted[a.JobID] })
	sortApps(apps, true)
	return apps, nil
}

func (r *ApplicationRepository) filter(keep func(*model.Application) bool) []*model.Application {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	apps := make([]*model.Application, 0)
	for _, a := range r.s.apps {
		if keep(a) {
			apps = append(apps, copyApp(a))
		}
	}
	return apps
}

// HistoryRepository is the in-memory audit log
type HistoryRepository struct{ s *Store }

func (r *HistoryRepository) Append(_ context.Context, entry *model.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.apps[entry.ApplicationID]; !ok {
		return errors.Wrap(database.ErrNotFound, database.ThrowApplicationNotFound)
	}

	entry.ID = newID("application_history")
	entry.ChangedOn = r.s.now()
	r.s.history[entry.ApplicationID] = append(r.s.history[entry.ApplicationID], copyEntry(entry))
	return nil
}

func (r *HistoryRepository) ListByApplication(_ context.Context, applicationID string) ([]*model.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stored := r.s.history[applicationID]
	entries := make([]*model.HistoryEntry, 0, len(stored))
	for _, e := range stored {
		entries = append(entries, copyEntry(e))
	}
	// seq follows the revision, so it orders the chain even when the
	// wall clock stepped backwards between two writes
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Seq != entries[j].Seq {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].ChangedOn.Before(entries[j].ChangedOn)
	})
	return entries, nil
}
