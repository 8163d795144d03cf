package model

import (
	"strings"
	"time"
)

// JobStatus represents whether a job accepts applications
type JobStatus string

const (
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
)

// Validation constants
const (
	MaxJobTitleLength       = 200
	MaxJobDescriptionLength = 10000
)

// IsValid reports whether s is a known job status
func (s JobStatus) IsValid() bool {
	return s == JobStatusOpen || s == JobStatusClosed
}

// Job represents a posted position
type Job struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	CompanyID   string    `json:"company_id"`
	Status      JobStatus `json:"status"`
	CreatedByID string    `json:"created_by_id"`
	CreatedOn   time.Time `json:"created_on"`
	UpdatedOn   time.Time `json:"updated_on"`
}

// IsOpen returns true if the job accepts new applications
func (j *Job) IsOpen() bool {
	return j.Status == JobStatusOpen
}

// CreateJobRequest is the payload for creating or replacing a job
type CreateJobRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	CompanyID   string  `json:"company_id"`
}

// Validate checks the job payload and returns field errors
func (r *CreateJobRequest) Validate() []FieldError {
	var errs []FieldError

	title := strings.TrimSpace(r.Title)
	if title == "" {
		errs = append(errs, FieldError{Field: "title", Message: "title is required"})
	} else if len(title) > MaxJobTitleLength {
		errs = append(errs, FieldError{Field: "title", Message: "title exceeds maximum length"})
	}
	if r.Description != nil && len(*r.Description) > MaxJobDescriptionLength {
		errs = append(errs, FieldError{Field: "description", Message: "description exceeds maximum length"})
	}
	if strings.TrimSpace(r.CompanyID) == "" {
		errs = append(errs, FieldError{Field: "company_id", Message: "company_id is required"})
	}

	return errs
}

// UpdateJobStatusRequest opens or closes a job
type UpdateJobStatusRequest struct {
	Status JobStatus `json:"status"`
}

// Validate checks the status payload
func (r *UpdateJobStatusRequest) Validate() []FieldError {
	if !r.Status.IsValid() {
		return []FieldError{{Field: "status", Message: "status must be 'open' or 'closed'"}}
	}
	return nil
}
