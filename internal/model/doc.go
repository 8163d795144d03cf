// Package model defines domain entities and data structures for the Hiretrack API.
//
// The model package contains struct definitions for domain objects, request
// payloads, and the RFC 9457 error type. Models are used across all layers.
//
// # Domain Entities
//
//   - User: account with a role (candidate, recruiter, hiring_manager)
//   - Job: posted position, open or closed
//   - Application: one candidate's pursuit of one job, with a current Stage
//   - HistoryEntry: append-only record of one stage transition
//
// # Stages
//
// Stage is a closed enumeration. Legal moves between stages are decided by a
// TransitionPolicy:
//
//	model.TransitionPolicyStrict.CanTransition(model.StageApplied, model.StageInterview) // true
//	model.TransitionPolicyStrict.CanTransition(model.StageHired, model.StageRejected)    // false
//
// # Error Types
//
// RFC 9457 Problem Details errors are defined in errors.go:
//
//	type ProblemDetails struct {
//	    Type    string    `json:"type"`
//	    Title   string    `json:"title"`
//	    Status  int       `json:"status"`
//	    Detail  string    `json:"detail"`
//	}
package model
