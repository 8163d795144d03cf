package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/model"
)

// ErrJobMissing is what a JobOwnershipChecker returns (or marks) for an
// unknown job. Other errors are treated as internal failures.
var ErrJobMissing = errors.New("job not found")

// JobOwnershipChecker reports whether userID created jobID
type JobOwnershipChecker interface {
	IsOwner(ctx context.Context, jobID, userID string) (bool, error)
}

// JobIDKey is the context key for the job ID
const JobIDKey contextKey = "jobID"

// GetJobID extracts the job ID from context
func GetJobID(ctx context.Context) string {
	if id, ok := ctx.Value(JobIDKey).(string); ok {
		return id
	}
	return ""
}

// JobOwner returns a middleware that admits only the recruiter who created
// the job named by the {jobId} path value. A missing job is 404, someone
// else's job is 403.
func JobOwner(checker JobOwnershipChecker, notFound func(error) bool) Middleware {
	if notFound == nil {
		notFound = func(err error) bool { return errors.Is(err, ErrJobMissing) }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				model.NewUnauthorizedError("authentication required").WriteJSON(w)
				return
			}

			jobID := r.PathValue("jobId")
			if jobID == "" {
				jobID = extractJobID(r.URL.Path)
			}
			if jobID == "" {
				model.NewBadRequestError("invalid job ID").WriteJSON(w)
				return
			}

			owner, err := checker.IsOwner(r.Context(), jobID, userID)
			switch {
			case err != nil && notFound(err):
				model.NewNotFoundError("job").WriteJSON(w)
				return
			case err != nil:
				slog.Error("job ownership check failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				model.NewInternalError("").WriteJSON(w)
				return
			case !owner:
				model.NewForbiddenError("not the owner of this job").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), JobIDKey, jobID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractJobID finds the segment after "jobs" in paths like
// /v1/jobs/{jobId} and /v1/jobs/{jobId}/applications
func extractJobID(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "jobs" && i+1 < len(parts) {
			if id := parts[i+1]; id != "" {
				return id
			}
		}
	}
	return ""
}
