package handler

import (
	"net/http"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/service"
)

// ApplicationHandler handles apply, listing and stage transitions
type ApplicationHandler struct {
	lifecycle  *service.LifecycleManager
	appService *service.ApplicationService
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(lifecycle *service.LifecycleManager, appService *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{lifecycle: lifecycle, appService: appService}
}

// Apply handles POST /v1/applications
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if actor == nil {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	var req model.CreateApplicationRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	app, err := h.lifecycle.CreateApplication(r.Context(), actor.ID, req.JobID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "create application"))
		return
	}

	WriteData(w, http.StatusCreated, app, applicationLinks(app))
}

// TransitionStage handles PATCH /v1/applications/{applicationId}/stage
func (h *ApplicationHandler) TransitionStage(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if actor == nil {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	var req model.UpdateStageRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	stage, errs := req.Validate()
	if len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	app, err := h.lifecycle.TransitionStage(r.Context(), r.PathValue("applicationId"), stage, actor.ID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "transition stage"))
		return
	}

	WriteData(w, http.StatusOK, app, applicationLinks(app))
}

// ListMine handles GET /v1/applications/me
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	candidateID := middleware.GetUserID(r.Context())

	apps, err := h.appService.ListMine(r.Context(), candidateID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list my applications"))
		return
	}

	WriteData(w, http.StatusOK, apps, map[string]string{"self": "/v1/applications/me"})
}

// ListForRecruiter handles GET /v1/applications/recruiter
func (h *ApplicationHandler) ListForRecruiter(w http.ResponseWriter, r *http.Request) {
	recruiterID := middleware.GetUserID(r.Context())

	rows, err := h.appService.ListForRecruiter(r.Context(), recruiterID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "list recruiter applications"))
		return
	}

	WriteData(w, http.StatusOK, rows, map[string]string{"self": "/v1/applications/recruiter"})
}

func applicationLinks(app *model.Application) map[string]string {
	return map[string]string{
		"self":    "/v1/applications/" + app.ID,
		"job":     "/v1/jobs/" + app.JobID,
		"history": "/v1/applications/" + app.ID + "/history",
	}
}
