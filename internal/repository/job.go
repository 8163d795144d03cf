package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// JobRepository handles job data access
type JobRepository struct {
	db database.Database
}

// NewJobRepository creates a new job repository
func NewJobRepository(db database.Database) *JobRepository {
	return &JobRepository{db: db}
}

// Create stores a new job and fills in its id and timestamps
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	id := newRecordID("job")

	query := `
		CREATE type::record($id) CONTENT {
			title: $title,
			description: $description,
			company_id: $company_id,
			status: $status,
			created_by_id: $created_by_id,
			created_on: <datetime>$now,
			updated_on: <datetime>$now
		}
	`
	vars := map[string]interface{}{
		"id":            id,
		"title":         job.Title,
		"description":   ptrToNone(job.Description),
		"company_id":    job.CompanyID,
		"status":        string(job.Status),
		"created_by_id": job.CreatedByID,
		"now":           nowString(now),
	}

	if err := r.db.Execute(ctx, query, vars); err != nil {
		return err
	}

	job.ID = id
	job.CreatedOn = now
	job.UpdatedOn = now
	return nil
}

// GetByID retrieves a job. Returns nil, nil when absent.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !isRecordOf(id, "job") {
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
	return parseJob(data), nil
}

// List returns jobs newest first, optionally filtered by status
func (r *JobRepository) List(ctx context.Context, status *model.JobStatus) ([]*model.Job, error) {
	query := `SELECT * FROM job ORDER BY created_on DESC`
	vars := map[string]interface{}{}
	if status != nil {
		query = `SELECT * FROM job WHERE status = $status ORDER BY created_on DESC`
		vars["status"] = string(*status)
	}
	return r.queryJobs(ctx, query, vars)
}

// ListByCreator returns the jobs a recruiter posted
func (r *JobRepository) ListByCreator(ctx context.Context, recruiterID string) ([]*model.Job, error) {
	query := `SELECT * FROM job WHERE created_by_id = $recruiter ORDER BY created_on DESC`
	return r.queryJobs(ctx, query, map[string]interface{}{"recruiter": recruiterID})
}

// Update replaces the editable fields of a job
func (r *JobRepository) Update(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	query := `
		UPDATE type::record($id) SET
			title = $title,
			description = $description,
			company_id = $company_id,
			updated_on = <datetime>$now
	`
	vars := map[string]interface{}{
		"id":          job.ID,
		"title":       job.Title,
		"description": ptrToNone(job.Description),
		"company_id":  job.CompanyID,
		"now":         nowString(now),
	}
	if err := r.db.Execute(ctx, query, vars); err != nil {
		return err
	}
	job.UpdatedOn = now
	return nil
}

// UpdateStatus opens or closes a job
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status model.JobStatus) error {
	query := `UPDATE type::record($id) SET status = $status, updated_on = time::now()`
	return r.db.Execute(ctx, query, map[string]interface{}{
		"id":     id,
		"status": string(status),
	})
}

// Delete removes a job that no application references. A referenced job
// is left in place and database.ErrInUse is returned.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	tb := database.NewTxBuilder()
	tb.Add(`LET $applied = (SELECT id FROM application WHERE job_id = $job LIMIT 1)`,
		map[string]interface{}{"job": id})
	tb.AddRaw(`IF array::len($applied) > 0 { THROW "` + database.ThrowJobHasApplications + `" }`)
	tb.Add(`DELETE type::record($job)`, map[string]interface{}{"job": id})

	if _, err := database.ExecuteTransaction(ctx, r.db, tb); err != nil {
		return errors.Wrap(err, "delete job")
	}
	return nil
}

func (r *JobRepository) queryJobs(ctx context.Context, query string, vars map[string]interface{}) ([]*model.Job, error) {
	results, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	rows := extractRows(results)
	jobs := make([]*model.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, parseJob(row))
	}
	return jobs, nil
}

func parseJob(data map[string]interface{}) *model.Job {
	return &model.Job{
		ID:          convertSurrealID(data["id"]),
		Title:       getString(data, "title"),
		Description: getStringPtr(data, "description"),
		CompanyID:   getString(data, "company_id"),
		Status:      model.JobStatus(getString(data, "status")),
		CreatedByID: getString(data, "created_by_id"),
		CreatedOn:   parseTime(data["created_on"]),
		UpdatedOn:   parseTime(data["updated_on"]),
	}
}
