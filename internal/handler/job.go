package handler

import (
	"net/http"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/service"
)

// JobHandler handles job endpoints
type JobHandler struct {
	jobService *service.JobService
	appService *service.ApplicationService
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *service.JobService, appService *service.ApplicationService) *JobHandler {
	return &JobHandler{jobService: jobService, appService: appService}
}

// List handles GET /v1/jobs?status=open
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *model.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.JobStatus(raw)
		status = &s
	}

	jobs, err := h.jobService.List(r.Context(), status)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list jobs"))
		return
	}

	WriteData(w, http.StatusOK, jobs, map[string]string{"self": "/v1/jobs"})
}

// Get handles GET /v1/jobs/{jobId}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	job, err := h.jobService.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "get job"))
		return
	}

	WriteData(w, http.StatusOK, job, jobLinks(job.ID))
}

// Create handles POST /v1/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if actor == nil {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	var req model.CreateJobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	job, err := h.jobService.Create(r.Context(), actor.ID, &req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "create job"))
		return
	}

	WriteData(w, http.StatusCreated, job, jobLinks(job.ID))
}

// Update handles PUT /v1/jobs/{jobId}
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())

	var req model.CreateJobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	job, err := h.jobService.Update(r.Context(), actorID, r.PathValue("jobId"), &req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "update job"))
		return
	}

	WriteData(w, http.StatusOK, job, jobLinks(job.ID))
}

// SetStatus handles PATCH /v1/jobs/{jobId}/status
func (h *JobHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())

	var req model.UpdateJobStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	job, err := h.jobService.SetStatus(r.Context(), actorID, r.PathValue("jobId"), &req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "set job status"))
		return
	}

	WriteData(w, http.StatusOK, job, jobLinks(job.ID))
}

// Delete handles DELETE /v1/jobs/{jobId}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())

	if err := h.jobService.Delete(r.Context(), actorID, r.PathValue("jobId")); err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "delete job"))
		return
	}

	WriteNoContent(w)
}

// ListApplications handles GET /v1/jobs/{jobId}/applications
func (h *JobHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	jobID := r.PathValue("jobId")

	apps, err := h.appService.ListForJob(r.Context(), actorID, jobID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list job applications"))
		return
	}

	WriteData(w, http.StatusOK, apps, map[string]string{
		"self": "/v1/jobs/" + jobID + "/applications",
		"job":  "/v1/jobs/" + jobID,
	})
}

func jobLinks(jobID string) map[string]string {
	return map[string]string{
		"self":         "/v1/jobs/" + jobID,
		"applications": "/v1/jobs/" + jobID + "/applications",
	}
}
