package handler

import (
	"net/http"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/service"
)

// HistoryHandler serves the audit chain of an application
type HistoryHandler struct {
	auditService *service.AuditService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(auditService *service.AuditService) *HistoryHandler {
	return &HistoryHandler{auditService: auditService}
}

// History handles GET /v1/applications/{applicationId}/history
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	appID := r.PathValue("applicationId")

	entries, err := h.auditService.History(r.Context(), appID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "get history"))
		return
	}

	WriteData(w, http.StatusOK, entries, map[string]string{
		"self": "/v1/applications/" + appID + "/history",
	})
}

// MyHistory handles GET /v1/me/applications/{applicationId}/history
func (h *HistoryHandler) MyHistory(w http.ResponseWriter, r *http.Request) {
	candidateID := middleware.GetUserID(r.Context())
	appID := r.PathValue("applicationId")

	entries, err := h.auditService.CandidateHistory(r.Context(), candidateID, appID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "get my history"))
		return
	}

	WriteData(w, http.StatusOK, entries, map[string]string{
		"self": "/v1/me/applications/" + appID + "/history",
	})
}
