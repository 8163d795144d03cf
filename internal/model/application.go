package model

import (
	"strings"
	"time"
)

// Application is one candidate's pursuit of one job
type Application struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	JobID       string    `json:"job_id"`
	Stage       Stage     `json:"stage"`
	Revision    int       `json:"revision"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// HistoryEntry is the immutable audit record of one stage transition.
// OldStage is nil only for the creation entry.
type HistoryEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	OldStage      *Stage    `json:"old_stage"`
	NewStage      Stage     `json:"new_stage"`
	ChangedByID   string    `json:"changed_by_id"`
	Seq           int       `json:"seq"`
	ChangedOn     time.Time `json:"changed_on"`
}

// ApplicationSummary is the recruiter-facing row joining application, job and candidate
type ApplicationSummary struct {
	ApplicationID  string    `json:"application_id"`
	JobID          string    `json:"job_id"`
	JobTitle       string    `json:"job_title"`
	CandidateID    string    `json:"candidate_id"`
	CandidateName  string    `json:"candidate_name"`
	CandidateEmail string    `json:"candidate_email"`
	Stage          Stage     `json:"stage"`
	CreatedOn      time.Time `json:"created_on"`
	UpdatedOn      time.Time `json:"updated_on"`
}

// StageEvent describes a committed lifecycle change. It is built only after
// the application and its history entry are durable.
type StageEvent struct {
	ApplicationID  string    `json:"application_id"`
	CandidateID    string    `json:"candidate_id"`
	JobID          string    `json:"job_id"`
	JobTitle       string    `json:"job_title"`
	OldStage       *Stage    `json:"old_stage,omitempty"`
	NewStage       Stage     `json:"new_stage"`
	ActorID        string    `json:"actor_id"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientName  string    `json:"recipient_name"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// IsCreation reports whether the event records a new application
func (e StageEvent) IsCreation() bool {
	return e.OldStage == nil
}

// CreateApplicationRequest is the candidate's apply payload
type CreateApplicationRequest struct {
	JobID string `json:"job_id"`
}

// Validate checks the apply payload
func (r *CreateApplicationRequest) Validate() []FieldError {
	if strings.TrimSpace(r.JobID) == "" {
		return []FieldError{{Field: "job_id", Message: "job_id is required"}}
	}
	return nil
}

// UpdateStageRequest moves an application to a new stage
type UpdateStageRequest struct {
	Stage string `json:"stage"`
}

// Validate checks the stage payload and returns the parsed stage
func (r *UpdateStageRequest) Validate() (Stage, []FieldError) {
	if strings.TrimSpace(r.Stage) == "" {
		return "", []FieldError{{Field: "stage", Message: "stage is required"}}
	}
	stage, err := ParseStage(r.Stage)
	if err != nil {
		return "", []FieldError{{Field: "stage", Message: err.Error()}}
	}
	return stage, nil
}
