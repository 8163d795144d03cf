package fixtures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/repository"
	"github.com/forgo/hiretrack/api/internal/repository/memory"
)

// DefaultPassword is the plaintext password of every fixture user
const DefaultPassword = "testpass123"

type userStore interface {
	Create(ctx context.Context, user *model.User) error
}

type jobStore interface {
	Create(ctx context.Context, job *model.Job) error
}

type applicationStore interface {
	CreateWithHistory(ctx context.Context, app *model.Application, entry *model.HistoryEntry) error
	TransitionWithHistory(ctx context.Context, app *model.Application, expectedRevision int, entry *model.HistoryEntry) error
}

// Factory creates test entities through the repository layer
type Factory struct {
	users userStore
	jobs  jobStore
	apps  applicationStore
}

// New creates a factory backed by SurrealDB repositories
func New(db database.Database) *Factory {
	return &Factory{
		users: repository.NewUserRepository(db),
		jobs:  repository.NewJobRepository(db),
		apps:  repository.NewApplicationRepository(db),
	}
}

// NewMemory creates a factory backed by the in-memory store
func NewMemory(store *memory.Store) *Factory {
	return &Factory{
		users: store.Users(),
		jobs:  store.Jobs(),
		apps:  store.Applications(),
	}
}

// randomID generates a random hex ID
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

// ============================================================================
// User Fixtures
// ============================================================================

// UserOpts customizes user creation
type UserOpts struct {
	Email     string
	FullName  string
	Password  string
	Role      model.UserRole
	CompanyID *string
}

// WithEmail sets the fixture user's email
func WithEmail(email string) func(*UserOpts) {
	return func(o *UserOpts) { o.Email = email }
}

// CreateUser creates a candidate unless opts say otherwise
func (f *Factory) CreateUser(t *testing.T, opts ...func(*UserOpts)) *model.User {
	t.Helper()

	id := randomID()
	o := &UserOpts{
		Email:    fmt.Sprintf("user_%s@test.local", id),
		FullName: "Test User " + id,
		Password: DefaultPassword,
		Role:     model.UserRoleCandidate,
	}
	for _, fn := range opts {
		fn(o)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("fixtures: failed to hash password: %v", err)
	}
	hashed := string(hash)

	user := &model.User{
		Email:     o.Email,
		FullName:  o.FullName,
		Hash:      &hashed,
		Role:      o.Role,
		CompanyID: o.CompanyID,
	}
	if err := f.users.Create(ctx(t), user); err != nil {
		t.Fatalf("fixtures: failed to create user: %v", err)
	}

	user.Hash = nil
	return user
}

// CreateCandidate creates a candidate user
func (f *Factory) CreateCandidate(t *testing.T, opts ...func(*UserOpts)) *model.User {
	t.Helper()
	return f.CreateUser(t, append([]func(*UserOpts){func(o *UserOpts) { o.Role = model.UserRoleCandidate }}, opts...)...)
}

// CreateRecruiter creates a recruiter user
func (f *Factory) CreateRecruiter(t *testing.T, opts ...func(*UserOpts)) *model.User {
	t.Helper()
	return f.CreateUser(t, append([]func(*UserOpts){func(o *UserOpts) { o.Role = model.UserRoleRecruiter }}, opts...)...)
}

// CreateHiringManager creates a hiring manager user
func (f *Factory) CreateHiringManager(t *testing.T, opts ...func(*UserOpts)) *model.User {
	t.Helper()
	return f.CreateUser(t, append([]func(*UserOpts){func(o *UserOpts) { o.Role = model.UserRoleHiringManager }}, opts...)...)
}

// ============================================================================
// Job Fixtures
// ============================================================================

// JobOpts customizes job creation
type JobOpts struct {
	Title     string
	CompanyID string
	Status    model.JobStatus
}

// WithJobStatus sets the fixture job's status
func WithJobStatus(status model.JobStatus) func(*JobOpts) {
	return func(o *JobOpts) { o.Status = status }
}

// CreateJob posts an open job owned by recruiter
func (f *Factory) CreateJob(t *testing.T, recruiter *model.User, opts ...func(*JobOpts)) *model.Job {
	t.Helper()

	o := &JobOpts{
		Title:     "Engineer " + randomID(),
		CompanyID: "acme",
		Status:    model.JobStatusOpen,
	}
	for _, fn := range opts {
		fn(o)
	}

	job := &model.Job{
		Title:       o.Title,
		CompanyID:   o.CompanyID,
		Status:      o.Status,
		CreatedByID: recruiter.ID,
	}
	if err := f.jobs.Create(ctx(t), job); err != nil {
		t.Fatalf("fixtures: failed to create job: %v", err)
	}
	return job
}

// ============================================================================
// Application Fixtures
// ============================================================================

// CreateApplication applies candidate to job with the initial history row
func (f *Factory) CreateApplication(t *testing.T, candidate *model.User, job *model.Job) *model.Application {
	t.Helper()

	app := &model.Application{
		CandidateID: candidate.ID,
		JobID:       job.ID,
		Stage:       model.InitialStage,
		Revision:    1,
	}
	entry := &model.HistoryEntry{
		NewStage:    model.InitialStage,
		ChangedByID: candidate.ID,
		Seq:         1,
	}
	if err := f.apps.CreateWithHistory(ctx(t), app, entry); err != nil {
		t.Fatalf("fixtures: failed to create application: %v", err)
	}
	return app
}

// Advance walks app through stages, recording each move as actor. It
// bypasses the transition policy.
func (f *Factory) Advance(t *testing.T, app *model.Application, actor *model.User, stages ...model.Stage) *model.Application {
	t.Helper()

	for _, stage := range stages {
		old := app.Stage
		expected := app.Revision
		app.Stage = stage
		app.Revision = expected + 1
		entry := &model.HistoryEntry{
			OldStage:    &old,
			NewStage:    stage,
			ChangedByID: actor.ID,
			Seq:         app.Revision,
		}
		if err := f.apps.TransitionWithHistory(ctx(t), app, expected, entry); err != nil {
			t.Fatalf("fixtures: failed to move application to %s: %v", stage, err)
		}
	}
	return app
}
