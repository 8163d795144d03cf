package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/repository/memory"
	"github.com/forgo/hiretrack/api/internal/service"
	"github.com/forgo/hiretrack/api/internal/testing/fixtures"
	"github.com/forgo/hiretrack/api/internal/testing/helpers"
)

// ============================================================================
// Fixture
// ============================================================================

type apiFixture struct {
	t       *testing.T
	store   *memory.Store
	factory *fixtures.Factory
	tokens  *service.TokenService
	router  http.Handler

	candidate *model.User
	other     *model.User
	recruiter *model.User
	rival     *model.User
	manager   *model.User
	job       *model.Job
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	tokens := service.NewTokenService(service.TokenServiceConfig{JWTService: helpers.NewTestJWTService(t)})
	store := memory.NewStore()

	authService := service.NewAuthService(service.AuthServiceConfig{UserRepo: store.Users(), TokenService: tokens})
	jobService := service.NewJobService(service.JobServiceConfig{JobRepo: store.Jobs()})
	appService := service.NewApplicationService(service.ApplicationServiceConfig{
		ApplicationRepo: store.Applications(),
		JobRepo:         store.Jobs(),
		UserRepo:        store.Users(),
	})
	auditService := service.NewAuditService(service.AuditServiceConfig{
		ApplicationRepo: store.Applications(),
		HistoryRepo:     store.History(),
	})
	lifecycle := service.NewLifecycleManager(service.LifecycleManagerConfig{
		ApplicationRepo: store.Applications(),
		JobRepo:         store.Jobs(),
		UserRepo:        store.Users(),
	})

	replays := middleware.NewIdempotencyStore(middleware.IdempotencyConfig{})
	t.Cleanup(replays.Stop)

	router := NewRouter(RouterConfig{
		Health:       NewHealthHandler(map[string]Pinger{"database": stubPinger{}}),
		Auth:         NewAuthHandler(authService),
		Jobs:         NewJobHandler(jobService, appService),
		Applications: NewApplicationHandler(lifecycle, appService),
		History:      NewHistoryHandler(auditService),
		AuthService:  authService,
		JobOwners:    jobService,
		Idempotency:  replays,
	})

	factory := fixtures.NewMemory(store)
	f := &apiFixture{t: t, store: store, factory: factory, tokens: tokens, router: router}
	f.candidate = factory.CreateCandidate(t)
	f.other = factory.CreateCandidate(t)
	f.recruiter = factory.CreateRecruiter(t)
	f.rival = factory.CreateRecruiter(t)
	f.manager = factory.CreateHiringManager(t)
	f.job = factory.CreateJob(t, f.recruiter)
	return f
}

func (f *apiFixture) do(method, path string, as *model.User, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.doKeyed(method, path, as, body, "")
}

// doKeyed is do with an Idempotency-Key header when key is set
func (f *apiFixture) doKeyed(method, path string, as *model.User, body any, key string) *httptest.ResponseRecorder {
	f.t.Helper()
	rb := helpers.NewRequest(f.t, method, path)
	if key != "" {
		rb.WithHeader(middleware.IdempotencyHeader, key)
	}
	if body != nil {
		rb.WithBody(body)
	}
	if as != nil {
		token, err := f.tokens.Issue(as)
		if err != nil {
			f.t.Fatalf("issue token: %v", err)
		}
		rb.WithToken(token.AccessToken)
	}
	return rb.Do(f.router)
}

func (f *apiFixture) apply(as *model.User) *model.Application {
	f.t.Helper()
	rr := f.do(http.MethodPost, "/v1/applications", as, map[string]string{"job_id": f.job.ID})
	if rr.Code != http.StatusCreated {
		f.t.Fatalf("apply: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var app model.Application
	helpers.DecodeData(f.t, rr, &app)
	return &app
}

// ============================================================================
// Apply and transition
// ============================================================================

func TestApply_CreatesApplicationAtApplied(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.do(http.MethodPost, "/v1/applications", f.candidate, map[string]string{"job_id": f.job.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var app model.Application
	links := helpers.DecodeData(t, rr, &app)
	if app.Stage != model.StageApplied || app.CandidateID != f.candidate.ID || app.JobID != f.job.ID {
		t.Errorf("unexpected application %+v", app)
	}
	if links["history"] != "/v1/applications/"+app.ID+"/history" {
		t.Errorf("expected history link, got %v", links)
	}
}

func TestApply_Twice_ReturnsConflict(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	f.apply(f.candidate)

	rr := f.do(http.MethodPost, "/v1/applications", f.candidate, map[string]string{"job_id": f.job.ID})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if p := helpers.DecodeProblem(t, rr); p.Status != http.StatusConflict {
		t.Errorf("unexpected problem %+v", p)
	}
}

func TestApply_Errors(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	closed := f.factory.CreateJob(t, f.recruiter, fixtures.WithJobStatus(model.JobStatusClosed))

	tests := []struct {
		name       string
		as         *model.User
		body       any
		wantStatus int
	}{
		{name: "anonymous", body: map[string]string{"job_id": f.job.ID}, wantStatus: http.StatusUnauthorized},
		{name: "recruiter cannot apply", as: f.recruiter, body: map[string]string{"job_id": f.job.ID}, wantStatus: http.StatusForbidden},
		{name: "missing job id", as: f.candidate, body: map[string]string{}, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown field", as: f.candidate, body: map[string]string{"job_id": f.job.ID, "stage": "Hired"}, wantStatus: http.StatusBadRequest},
		{name: "unknown job", as: f.candidate, body: map[string]string{"job_id": "job:missing"}, wantStatus: http.StatusNotFound},
		{name: "closed job", as: f.candidate, body: map[string]string{"job_id": closed.ID}, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/v1/applications", tt.as, tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestTransitionStage_RecordsHistory(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	app := f.apply(f.candidate)

	rr := f.do(http.MethodPatch, "/v1/applications/"+app.ID+"/stage", f.recruiter, map[string]string{"stage": "Screening"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var moved model.Application
	helpers.DecodeData(t, rr, &moved)
	if moved.Stage != model.StageScreening || moved.Revision != 2 {
		t.Errorf("unexpected application %+v", moved)
	}

	rr = f.do(http.MethodPatch, "/v1/applications/"+app.ID+"/stage", f.manager, map[string]string{"stage": "Interview"})
	if rr.Code != http.StatusOK {
		t.Fatalf("hiring manager transition: expected 200, got %d", rr.Code)
	}

	rr = f.do(http.MethodGet, "/v1/applications/"+app.ID+"/history", f.manager, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rr.Code)
	}
	var entries []model.HistoryEntry
	helpers.DecodeData(t, rr, &entries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(entries))
	}
	if entries[0].OldStage != nil || entries[0].NewStage != model.StageApplied {
		t.Errorf("first row should be the creation, got %+v", entries[0])
	}
	if entries[2].OldStage == nil || *entries[2].OldStage != model.StageScreening || entries[2].NewStage != model.StageInterview {
		t.Errorf("last row should be Screening to Interview, got %+v", entries[2])
	}
	if entries[2].ChangedByID != f.manager.ID {
		t.Errorf("expected changed_by %s, got %s", f.manager.ID, entries[2].ChangedByID)
	}
}

func TestTransitionStage_RetryWithKeyIsReplayed(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	app := f.apply(f.candidate)
	path := "/v1/applications/" + app.ID + "/stage"
	body := map[string]string{"stage": "Screening"}

	first := f.doKeyed(http.MethodPatch, path, f.recruiter, body, "move-screening")
	retry := f.doKeyed(http.MethodPatch, path, f.recruiter, body, "move-screening")
	if first.Code != http.StatusOK || retry.Code != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d then %d: %s", first.Code, retry.Code, retry.Body.String())
	}
	if retry.Header().Get(middleware.ReplayedHeader) != "true" {
		t.Error("retry should be served from the replay cache")
	}

	// without the key the same move is a same-stage transition
	again := f.do(http.MethodPatch, path, f.recruiter, body)
	if again.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an unkeyed repeat, got %d", again.Code)
	}

	entries, err := f.store.History().ListByApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected creation plus one move, got %d rows", len(entries))
	}
}

func TestTransitionStage_Errors(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	app := f.apply(f.candidate)
	hired := f.apply(f.other)
	if rr := f.do(http.MethodPatch, "/v1/applications/"+hired.ID+"/stage", f.recruiter, map[string]string{"stage": "Hired"}); rr.Code != http.StatusOK {
		t.Fatalf("setup hire: %d", rr.Code)
	}

	tests := []struct {
		name       string
		as         *model.User
		appID      string
		stage      string
		wantStatus int
		wantField  string
	}{
		{name: "candidate may not move stages", as: f.candidate, appID: app.ID, stage: "Screening", wantStatus: http.StatusForbidden},
		{name: "unknown stage", as: f.recruiter, appID: app.ID, stage: "Ghosted", wantStatus: http.StatusUnprocessableEntity, wantField: "stage"},
		{name: "same stage", as: f.recruiter, appID: app.ID, stage: "Applied", wantStatus: http.StatusUnprocessableEntity, wantField: "state"},
		{name: "out of terminal", as: f.recruiter, appID: hired.ID, stage: "Screening", wantStatus: http.StatusUnprocessableEntity, wantField: "state"},
		{name: "missing application", as: f.recruiter, appID: "application:missing", stage: "Screening", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPatch, "/v1/applications/"+tt.appID+"/stage", tt.as, map[string]string{"stage": tt.stage})
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			p := helpers.DecodeProblem(t, rr)
			if len(p.Errors) == 0 || p.Errors[0].Field != tt.wantField {
				t.Errorf("expected field %q, got %+v", tt.wantField, p.Errors)
			}
		})
	}

	// A rejected transition leaves the history untouched
	entries, err := f.store.History().ListByApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the creation row, got %d", len(entries))
	}
}

// ============================================================================
// Listings and candidate history
// ============================================================================

func TestListings(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	app := f.apply(f.candidate)
	f.apply(f.other)

	rr := f.do(http.MethodGet, "/v1/applications/me", f.candidate, nil)
	var mine []model.Application
	helpers.DecodeData(t, rr, &mine)
	if len(mine) != 1 || mine[0].ID != app.ID {
		t.Errorf("expected only the candidate's application, got %+v", mine)
	}

	rr = f.do(http.MethodGet, "/v1/applications/recruiter", f.recruiter, nil)
	var summaries []model.ApplicationSummary
	helpers.DecodeData(t, rr, &summaries)
	if len(summaries) != 2 {
		t.Errorf("expected 2 summaries for the recruiter, got %d", len(summaries))
	}

	rr = f.do(http.MethodGet, "/v1/applications/recruiter", f.rival, nil)
	summaries = nil
	helpers.DecodeData(t, rr, &summaries)
	if len(summaries) != 0 {
		t.Errorf("rival recruiter should see nothing, got %d", len(summaries))
	}

	rr = f.do(http.MethodGet, "/v1/jobs/"+f.job.ID+"/applications", f.recruiter, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner listing: expected 200, got %d", rr.Code)
	}
	rr = f.do(http.MethodGet, "/v1/jobs/"+f.job.ID+"/applications", f.rival, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("rival listing: expected 403, got %d", rr.Code)
	}
	rr = f.do(http.MethodGet, "/v1/jobs/job:missing/applications", f.recruiter, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job: expected 404, got %d", rr.Code)
	}
}

func TestMyHistory_OnlyOwner(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	app := f.apply(f.candidate)

	rr := f.do(http.MethodGet, "/v1/me/applications/"+app.ID+"/history", f.candidate, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", rr.Code)
	}
	var entries []model.HistoryEntry
	helpers.DecodeData(t, rr, &entries)
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}

	rr = f.do(http.MethodGet, "/v1/me/applications/"+app.ID+"/history", f.other, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("other candidate: expected 403, got %d", rr.Code)
	}
	rr = f.do(http.MethodGet, "/v1/applications/"+app.ID+"/history", f.candidate, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("candidate on reviewer route: expected 403, got %d", rr.Code)
	}
}

// ============================================================================
// Jobs
// ============================================================================

func TestJobs_CreateUpdateCloseDelete(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.do(http.MethodPost, "/v1/jobs", f.recruiter, map[string]any{"title": "Data Engineer", "company_id": "acme"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var job model.Job
	helpers.DecodeData(t, rr, &job)
	if job.Status != model.JobStatusOpen || job.CreatedByID != f.recruiter.ID {
		t.Errorf("unexpected job %+v", job)
	}

	rr = f.do(http.MethodPut, "/v1/jobs/"+job.ID, f.rival, map[string]any{"title": "Stolen", "company_id": "acme"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("rival update: expected 403, got %d", rr.Code)
	}

	rr = f.do(http.MethodPut, "/v1/jobs/"+job.ID, f.recruiter, map[string]any{"title": "Senior Data Engineer", "company_id": "acme"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodPatch, "/v1/jobs/"+job.ID+"/status", f.recruiter, map[string]string{"status": "closed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodGet, "/v1/jobs?status=open", nil, nil)
	var open []model.Job
	helpers.DecodeData(t, rr, &open)
	for _, j := range open {
		if j.ID == job.ID {
			t.Error("closed job listed as open")
		}
	}

	rr = f.do(http.MethodDelete, "/v1/jobs/"+job.ID, f.recruiter, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = f.do(http.MethodGet, "/v1/jobs/"+job.ID, nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", rr.Code)
	}
}

func TestJobs_CandidateCannotPost(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.do(http.MethodPost, "/v1/jobs", f.candidate, map[string]any{"title": "Nope", "company_id": "acme"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

// ============================================================================
// Auth and health
// ============================================================================

func TestAuth_RegisterLoginMe(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rr := f.do(http.MethodPost, "/v1/auth/register", nil, map[string]string{
		"email": "New.Person@Example.com", "password": "correct-horse", "full_name": "New Person", "role": "candidate",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodPost, "/v1/auth/register", nil, map[string]string{
		"email": "new.person@example.com", "password": "correct-horse", "full_name": "Again", "role": "candidate",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", rr.Code)
	}

	rr = f.do(http.MethodPost, "/v1/auth/login", nil, map[string]string{"email": "new.person@example.com", "password": "wrong-horse"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad login: expected 401, got %d", rr.Code)
	}

	rr = f.do(http.MethodPost, "/v1/auth/login", nil, map[string]string{"email": "new.person@example.com", "password": "correct-horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result struct {
		User  UserResponse        `json:"user"`
		Token service.AccessToken `json:"token"`
	}
	helpers.DecodeData(t, rr, &result)
	if result.User.Role != model.UserRoleCandidate || result.Token.AccessToken == "" {
		t.Fatalf("unexpected login result %+v", result)
	}

	me := helpers.NewRequest(t, http.MethodGet, "/v1/auth/me").WithToken(result.Token.AccessToken).Do(f.router)
	var user UserResponse
	helpers.DecodeData(t, me, &user)
	if user.Email != "new.person@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
}

func TestAuth_RegisterValidation(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	tests := []struct {
		name      string
		body      map[string]string
		wantField string
	}{
		{name: "bad email", body: map[string]string{"email": "nope", "password": "correct-horse", "full_name": "X", "role": "candidate"}, wantField: "email"},
		{name: "short password", body: map[string]string{"email": "a@b.io", "password": "short", "full_name": "X", "role": "candidate"}, wantField: "password"},
		{name: "missing name", body: map[string]string{"email": "a@b.io", "password": "correct-horse", "role": "candidate"}, wantField: "full_name"},
		{name: "bad role", body: map[string]string{"email": "a@b.io", "password": "correct-horse", "full_name": "X", "role": "admin"}, wantField: "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/v1/auth/register", nil, tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}
			p := helpers.DecodeProblem(t, rr)
			if len(p.Errors) != 1 || p.Errors[0].Field != tt.wantField {
				t.Errorf("expected field %q, got %+v", tt.wantField, p.Errors)
			}
		})
	}
}

func TestReady_ReportsFailedDependency(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(map[string]Pinger{
		"database": stubPinger{},
		"queue":    stubPinger{err: errors.New("connection refused")},
	})
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "unavailable" || body.Checks["database"] != "ok" || body.Checks["queue"] != "connection refused" {
		t.Errorf("unexpected body %+v", body)
	}
}
