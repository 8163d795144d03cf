package handler

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/service"
)

// RouterConfig holds everything the route table needs
type RouterConfig struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	Jobs         *JobHandler
	Applications *ApplicationHandler
	History      *HistoryHandler

	AuthService middleware.AuthService
	JobOwners   middleware.JobOwnershipChecker
	Idempotency *middleware.IdempotencyStore // optional
}

// NewRouter registers every API route on a fresh ServeMux
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	authn := middleware.Auth(cfg.AuthService)
	jobOwner := middleware.JobOwner(cfg.JobOwners, func(err error) bool {
		return errors.Is(err, service.ErrNotFound)
	})

	// guard chains authentication, a role check and any extra middleware
	guard := func(h http.HandlerFunc, roles []model.UserRole, extra ...middleware.Middleware) http.Handler {
		chain := append([]middleware.Middleware{authn, middleware.RequireRole(roles...)}, extra...)
		return middleware.Chain(h, chain...)
	}
	recruiter := []model.UserRole{model.UserRoleRecruiter}
	candidate := []model.UserRole{model.UserRoleCandidate}
	reviewers := []model.UserRole{model.UserRoleRecruiter, model.UserRoleHiringManager}
	replayable := middleware.Idempotency(cfg.Idempotency)

	// Health
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	// Auth
	mux.HandleFunc("POST /v1/auth/register", cfg.Auth.Register)
	mux.HandleFunc("POST /v1/auth/login", cfg.Auth.Login)
	mux.Handle("GET /v1/auth/me", authn(http.HandlerFunc(cfg.Auth.Me)))

	// Jobs
	mux.HandleFunc("GET /v1/jobs", cfg.Jobs.List)
	mux.HandleFunc("GET /v1/jobs/{jobId}", cfg.Jobs.Get)
	mux.Handle("POST /v1/jobs", guard(cfg.Jobs.Create, recruiter))
	mux.Handle("PUT /v1/jobs/{jobId}", guard(cfg.Jobs.Update, recruiter, jobOwner))
	mux.Handle("PATCH /v1/jobs/{jobId}/status", guard(cfg.Jobs.SetStatus, recruiter, jobOwner))
	mux.Handle("DELETE /v1/jobs/{jobId}", guard(cfg.Jobs.Delete, recruiter, jobOwner))
	mux.Handle("GET /v1/jobs/{jobId}/applications", guard(cfg.Jobs.ListApplications, recruiter, jobOwner))

	// Applications
	mux.Handle("POST /v1/applications", guard(cfg.Applications.Apply, candidate, replayable))
	mux.Handle("GET /v1/applications/me", guard(cfg.Applications.ListMine, candidate))
	mux.Handle("GET /v1/applications/recruiter", guard(cfg.Applications.ListForRecruiter, recruiter))
	mux.Handle("PATCH /v1/applications/{applicationId}/stage", guard(cfg.Applications.TransitionStage, reviewers, replayable))

	// History
	mux.Handle("GET /v1/applications/{applicationId}/history", guard(cfg.History.History, reviewers))
	mux.Handle("GET /v1/me/applications/{applicationId}/history", guard(cfg.History.MyHistory, candidate))

	return mux
}
