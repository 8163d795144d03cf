// Package middleware provides HTTP middleware for the Hiretrack API.
//
// # Available Middleware
//
//   - Auth / OptionalAuth: bearer token validation
//   - RequireRole: role guard that stores the admitted Actor
//   - JobOwner: admits only the recruiter who created {jobId}
//   - RateLimit: per-user or per-IP limiting over a Limiter
//   - Idempotency: replays the first response to a keyed POST or PATCH
//   - RequestID, Logger, Recovery, CORS, Compress
//
// # Authorization
//
// Guards are composed per route and fail closed:
//
//	recruiter := middleware.RequireRole(model.UserRoleRecruiter)
//	mux.Handle("PATCH /v1/jobs/{jobId}/status",
//	    middleware.Chain(h, auth, recruiter, middleware.JobOwner(jobs, isNotFound)))
//
// After a guard admits a request, handlers read the caller with GetActor.
//
// # Rate Limiting
//
// RateLimiter keeps token buckets in process memory. RedisLimiter keeps a
// fixed-window counter in Redis so every API replica shares one budget.
package middleware
