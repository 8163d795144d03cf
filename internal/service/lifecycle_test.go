package service

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/repository/memory"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.StageEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.StageEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Events() []model.StageEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.StageEvent(nil), d.events...)
}

type panickingDispatcher struct{}

func (panickingDispatcher) Dispatch(context.Context, model.StageEvent) {
	panic("queue exploded")
}

// conflictingApps fails the first n transitions with a stale revision
type conflictingApps struct {
	*memory.ApplicationRepository
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (c *conflictingApps) TransitionWithHistory(ctx context.Context, app *model.Application, expected int, entry *model.HistoryEntry) error {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.conflicts
	c.mu.Unlock()
	if fail {
		return errors.Wrap(database.ErrConflict, database.ThrowRevisionConflict)
	}
	return c.ApplicationRepository.TransitionWithHistory(ctx, app, expected, entry)
}

type lifecycleFixture struct {
	store      *memory.Store
	manager    *LifecycleManager
	dispatcher *recordingDispatcher
	candidate  *model.User
	recruiter  *model.User
	job        *model.Job
}

func newLifecycleFixture(t *testing.T, policy model.TransitionPolicy) *lifecycleFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	candidate := &model.User{Email: "c1@example.com", FullName: "Casey Candidate", Role: model.UserRoleCandidate}
	require.NoError(t, store.Users().Create(ctx, candidate))
	recruiter := &model.User{Email: "r1@example.com", FullName: "Rita Recruiter", Role: model.UserRoleRecruiter}
	require.NoError(t, store.Users().Create(ctx, recruiter))

	job := &model.Job{Title: "Backend Engineer", CompanyID: "acme", Status: model.JobStatusOpen, CreatedByID: recruiter.ID}
	require.NoError(t, store.Jobs().Create(ctx, job))

	dispatcher := &recordingDispatcher{}
	manager := NewLifecycleManager(LifecycleManagerConfig{
		ApplicationRepo: store.Applications(),
		JobRepo:         store.Jobs(),
		UserRepo:        store.Users(),
		Dispatcher:      dispatcher,
		Policy:          policy,
	})

	return &lifecycleFixture{
		store:      store,
		manager:    manager,
		dispatcher: dispatcher,
		candidate:  candidate,
		recruiter:  recruiter,
		job:        job,
	}
}

func (f *lifecycleFixture) history(t *testing.T, appID string) []*model.HistoryEntry {
	t.Helper()
	entries, err := f.store.History().ListByApplication(context.Background(), appID)
	require.NoError(t, err)
	return entries
}

func assertGaplessChain(t *testing.T, entries []*model.HistoryEntry, final model.Stage) {
	t.Helper()
	require.NotEmpty(t, entries)
	assert.Nil(t, entries[0].OldStage, "chain must start from no stage")
	assert.Equal(t, model.StageApplied, entries[0].NewStage)
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].OldStage)
		assert.Equal(t, entries[i-1].NewStage, *entries[i].OldStage, "gap at entry %d", i)
		assert.Equal(t, entries[i-1].Seq+1, entries[i].Seq)
	}
	assert.Equal(t, final, entries[len(entries)-1].NewStage)
}

func TestLifecycle_ApplyMoveReapply_Scenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageApplied, app.Stage)
	assert.Equal(t, 1, app.Revision)

	moved, err := f.manager.TransitionStage(ctx, app.ID, model.StageScreening, f.recruiter.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageScreening, moved.Stage)
	assert.Equal(t, 2, moved.Revision)

	_, err = f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	assert.True(t, errors.Is(err, ErrAlreadyApplied))
	assert.True(t, errors.Is(err, ErrConflict))

	entries := f.history(t, app.ID)
	require.Len(t, entries, 2)
	assertGaplessChain(t, entries, model.StageScreening)
	assert.Equal(t, f.candidate.ID, entries[0].ChangedByID)
	assert.Equal(t, f.recruiter.ID, entries[1].ChangedByID)

	events := f.dispatcher.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsCreation())
	assert.Equal(t, "c1@example.com", events[0].RecipientEmail)
	assert.Equal(t, "Backend Engineer", events[0].JobTitle)
	require.NotNil(t, events[1].OldStage)
	assert.Equal(t, model.StageApplied, *events[1].OldStage)
	assert.Equal(t, model.StageScreening, events[1].NewStage)
	assert.Equal(t, f.recruiter.ID, events[1].ActorID)
	assert.Equal(t, "Casey Candidate", events[1].RecipientName)
}

func TestLifecycle_EachTransitionAddsExactlyOneRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	path := []model.Stage{model.StageScreening, model.StageInterview, model.StageOffer, model.StageHired}
	for i, stage := range path {
		_, err := f.manager.TransitionStage(ctx, app.ID, stage, f.recruiter.ID)
		require.NoError(t, err)

		stored, err := f.store.Applications().GetByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, stage, stored.Stage)
		assert.Len(t, f.history(t, app.ID), i+2)
	}

	assertGaplessChain(t, f.history(t, app.ID), model.StageHired)
}

func TestLifecycle_ClosedJob_CreatesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)
	require.NoError(t, f.store.Jobs().UpdateStatus(ctx, f.job.ID, model.JobStatusClosed))

	_, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	assert.True(t, errors.Is(err, ErrJobNotOpen))
	assert.True(t, errors.Is(err, ErrInvalidState))

	apps, err := f.store.Applications().ListByJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Empty(t, f.dispatcher.Events())
}

func TestLifecycle_MissingJob_ReturnsNotFound(t *testing.T) {
	t.Parallel()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	_, err := f.manager.CreateApplication(context.Background(), f.candidate.ID, "job:missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLifecycle_IllegalTransition_LeavesStateUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)
	_, err = f.manager.TransitionStage(ctx, app.ID, model.StageRejected, f.recruiter.ID)
	require.NoError(t, err)

	for _, target := range []model.Stage{model.StageScreening, model.StageRejected, model.StageApplied} {
		_, err := f.manager.TransitionStage(ctx, app.ID, target, f.recruiter.ID)
		assert.True(t, errors.Is(err, ErrIllegalTransition), "target %s", target)
		assert.True(t, errors.Is(err, ErrInvalidState), "target %s", target)
	}

	assert.Len(t, f.history(t, app.ID), 2)
	assert.Len(t, f.dispatcher.Events(), 2)
}

func TestLifecycle_UnknownStage_IsValidationError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	_, err = f.manager.TransitionStage(ctx, app.ID, model.Stage("Ghosted"), f.recruiter.ID)
	assert.True(t, errors.Is(err, ErrInvalidStage))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestLifecycle_MissingApplication_ReturnsNotFound(t *testing.T) {
	t.Parallel()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	_, err := f.manager.TransitionStage(context.Background(), "application:missing", model.StageScreening, f.recruiter.ID)
	assert.True(t, errors.Is(err, ErrApplicationNotFound))
}

func TestLifecycle_PermissivePolicy_AllowsAnyMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyPermissive)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	for _, stage := range []model.Stage{model.StageHired, model.StageApplied, model.StageRejected, model.StageInterview} {
		_, err := f.manager.TransitionStage(ctx, app.ID, stage, f.recruiter.ID)
		require.NoError(t, err, "move to %s", stage)
	}
	assertGaplessChain(t, f.history(t, app.ID), model.StageInterview)
}

func TestLifecycle_FaultDuringCreate_PersistsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)
	boom := errors.New("disk on fire")
	f.store.SetFaultHook(func(string) error { return boom })

	_, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.ErrorIs(t, err, boom)

	existing, err := f.store.Applications().GetByCandidateAndJob(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)
	assert.Nil(t, existing)
	assert.Empty(t, f.dispatcher.Events())
}

func TestLifecycle_FaultDuringTransition_KeepsOldStage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	boom := errors.New("history write lost")
	f.store.SetFaultHook(func(step string) error {
		if step == memory.StepApplicationStaged {
			return boom
		}
		return nil
	})

	_, err = f.manager.TransitionStage(ctx, app.ID, model.StageOffer, f.recruiter.ID)
	require.ErrorIs(t, err, boom)

	stored, err := f.store.Applications().GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageApplied, stored.Stage)
	assert.Equal(t, 1, stored.Revision)
	assert.Len(t, f.history(t, app.ID), 1)
	assert.Len(t, f.dispatcher.Events(), 1)
}

func TestLifecycle_DispatcherPanic_DoesNotFailOperation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)
	manager := NewLifecycleManager(LifecycleManagerConfig{
		ApplicationRepo: f.store.Applications(),
		JobRepo:         f.store.Jobs(),
		UserRepo:        f.store.Users(),
		Dispatcher:      panickingDispatcher{},
	})

	app, err := manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)
	_, err = manager.TransitionStage(ctx, app.ID, model.StageInterview, f.recruiter.ID)
	require.NoError(t, err)

	assert.Len(t, f.history(t, app.ID), 2)
}

func TestLifecycle_StaleRevision_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	apps := &conflictingApps{ApplicationRepository: f.store.Applications(), conflicts: 2}
	manager := NewLifecycleManager(LifecycleManagerConfig{
		ApplicationRepo: apps,
		JobRepo:         f.store.Jobs(),
		UserRepo:        f.store.Users(),
	})

	moved, err := manager.TransitionStage(ctx, app.ID, model.StageScreening, f.recruiter.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageScreening, moved.Stage)
	assert.Equal(t, 3, apps.calls)
	assert.Len(t, f.history(t, app.ID), 2)
}

func TestLifecycle_StaleRevision_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	app, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
	require.NoError(t, err)

	apps := &conflictingApps{ApplicationRepository: f.store.Applications(), conflicts: 100}
	manager := NewLifecycleManager(LifecycleManagerConfig{
		ApplicationRepo: apps,
		JobRepo:         f.store.Jobs(),
	})

	_, err = manager.TransitionStage(ctx, app.ID, model.StageScreening, f.recruiter.ID)
	assert.True(t, errors.Is(err, ErrConcurrentTransition))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, DefaultTransitionAttempts, apps.calls)
	assert.Len(t, f.history(t, app.ID), 1)
}

func TestLifecycle_ConcurrentApplies_OnlyOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newLifecycleFixture(t, model.TransitionPolicyStrict)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.CreateApplication(ctx, f.candidate.ID, f.job.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyApplied), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)

	apps, err := f.store.Applications().ListByCandidate(ctx, f.candidate.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}
