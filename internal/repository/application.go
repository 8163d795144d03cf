package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// ApplicationRepository handles application data access. Every write that
// changes a stage also appends the matching history row in the same batch.
type ApplicationRepository struct {
	db database.Database
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db database.Database) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const createApplicationQuery = `
	CREATE type::record($id) CONTENT {
		candidate_id: $candidate,
		job_id: $job,
		stage: $stage,
		revision: $revision,
		created_on: <datetime>$now,
		updated_on: <datetime>$now
	}
`

const createHistoryQuery = `
	CREATE type::record($id) CONTENT {
		application_id: $application,
		old_stage: $old_stage,
		new_stage: $new_stage,
		changed_by_id: $actor,
		seq: $seq,
		changed_on: <datetime>$now
	}
`

// CreateWithHistory stores a new application and its creation history row
// atomically. A second application for the same candidate and job fails
// with database.ErrDuplicate from the unique index.
func (r *ApplicationRepository) CreateWithHistory(ctx context.Context, app *model.Application, entry *model.HistoryEntry) error {
	now := time.Now().UTC()
	appID := newRecordID("application")
	entryID := newRecordID("application_history")

	batch := database.NewAtomicBatch().
		Add(createApplicationQuery, map[string]interface{}{
			"id":        appID,
			"candidate": app.CandidateID,
			"job":       app.JobID,
			"stage":     string(app.Stage),
			"revision":  app.Revision,
			"now":       nowString(now),
		}).
		Add(createHistoryQuery, historyVars(entryID, appID, entry, now))

	if err := batch.Execute(ctx, r.db); err != nil {
		return errors.Wrap(err, "create application")
	}

	app.ID = appID
	app.CreatedOn = now
	app.UpdatedOn = now
	entry.ID = entryID
	entry.ApplicationID = appID
	entry.ChangedOn = now
	return nil
}

// TransitionWithHistory writes app.Stage and app.Revision only if the stored
// revision still equals expectedRevision, and appends entry in the same
// transaction. A lost race fails with database.ErrConflict and writes nothing.
func (r *ApplicationRepository) TransitionWithHistory(ctx context.Context, app *model.Application, expectedRevision int, entry *model.HistoryEntry) error {
	now := time.Now().UTC()
	entryID := newRecordID("application_history")

	tb := database.NewTxBuilder()
	tb.Add(`LET $updated = (UPDATE type::record($id) SET
			stage = $stage,
			revision = $revision,
			updated_on = <datetime>$now
		WHERE revision = $expected RETURN AFTER)`, map[string]interface{}{
		"id":       app.ID,
		"stage":    string(app.Stage),
		"revision": app.Revision,
		"expected": expectedRevision,
		"now":      nowString(now),
	})
	tb.AddRaw(`IF array::len($updated) = 0 { THROW "` + database.ThrowRevisionConflict + `" }`)
	tb.Add(createHistoryQuery, historyVars(entryID, app.ID, entry, now))

	if _, err := database.ExecuteTransaction(ctx, r.db, tb); err != nil {
		return errors.Wrap(err, "transition application")
	}

	app.UpdatedOn = now
	entry.ID = entryID
	entry.ApplicationID = app.ID
	entry.ChangedOn = now
	return nil
}

// GetByID retrieves an application. Returns nil, nil when absent.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*model.Application, error) {
	if !isRecordOf(id, "application") {
		return nil, nil
	}
	result, err := r.db.QueryOne(ctx, `SELECT * FROM type::record($id)`, map[string]interface{}{"id": id})
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	data, err := asRow(result)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return parseApplication(data), nil
}

// GetByCandidateAndJob finds the single application a candidate holds for a job
func (r *ApplicationRepository) GetByCandidateAndJob(ctx context.Context, candidateID, jobID string) (*model.Application, error) {
	query := `SELECT * FROM application WHERE candidate_id = $candidate AND job_id = $job LIMIT 1`
	result, err := r.db.QueryOne(ctx, query, map[string]interface{}{
		"candidate": candidateID,
		"job":       jobID,
	})
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	data, err := asRow(result)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return parseApplication(data), nil
}

// ListByJob returns applications for a job, oldest first
func (r *ApplicationRepository) ListByJob(ctx context.Context, jobID string) ([]*model.Application, error) {
	query := `SELECT * FROM application WHERE job_id = $job ORDER BY created_on ASC`
	return r.queryApplications(ctx, query, map[string]interface{}{"job": jobID})
}

// ListByCandidate returns a candidate's applications, newest first
func (r *ApplicationRepository) ListByCandidate(ctx context.Context, candidateID string) ([]*model.Application, error) {
	query := `SELECT * FROM application WHERE candidate_id = $candidate ORDER BY created_on DESC`
	return r.queryApplications(ctx, query, map[string]interface{}{"candidate": candidateID})
}

// ListByJobs returns applications for any of the given jobs, newest first
func (r *ApplicationRepository) ListByJobs(ctx context.Context, jobIDs []string) ([]*model.Application, error) {
	if len(jobIDs) == 0 {
		return []*model.Application{}, nil
	}
	query := `SELECT * FROM application WHERE job_id IN $jobs ORDER BY created_on DESC`
	return r.queryApplications(ctx, query, map[string]interface{}{"jobs": jobIDs})
}

func (r *ApplicationRepository) queryApplications(ctx context.Context, query string, vars map[string]interface{}) ([]*model.Application, error) {
	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	rows := extractRows(results)
	apps := make([]*model.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, parseApplication(row))
	}
	return apps, nil
}

func historyVars(entryID, appID string, entry *model.HistoryEntry, now time.Time) map[string]interface{} {
	var oldStage interface{}
	if entry.OldStage != nil {
		oldStage = string(*entry.OldStage)
	}
	return map[string]interface{}{
		"id":          entryID,
		"application": appID,
		"old_stage":   oldStage,
		"new_stage":   string(entry.NewStage),
		"actor":       entry.ChangedByID,
		"seq":         entry.Seq,
		"now":         nowString(now),
	}
}

func parseApplication(data map[string]interface{}) *model.Application {
	return &model.Application{
		ID:          convertSurrealID(data["id"]),
		CandidateID: getString(data, "candidate_id"),
		JobID:       getString(data, "job_id"),
		Stage:       model.Stage(getString(data, "stage")),
		Revision:    getInt(data, "revision"),
		CreatedOn:   parseTime(data["created_on"]),
		UpdatedOn:   parseTime(data["updated_on"]),
	}
}
