package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/surrealdb/surrealdb.go"
)

// SurrealDB implements the Database interface for SurrealDB
type SurrealDB struct {
	db     *surrealdb.DB
	config Config
}

// NewSurrealDB creates a new SurrealDB instance
func NewSurrealDB(cfg Config) *SurrealDB {
	return &SurrealDB{
		config: cfg,
	}
}

// Connect establishes a connection to SurrealDB
func (s *SurrealDB) Connect(ctx context.Context) error {
	endpoint := fmt.Sprintf("ws://%s:%s", s.config.Host, s.config.Port)

	db, err := surrealdb.FromEndpointURLString(ctx, endpoint)
	if err != nil {
		return errors.Wrapf(ErrConnection, "dial %s: %v", endpoint, err)
	}

	_, err = db.SignIn(ctx, &surrealdb.Auth{
		Username: s.config.User,
		Password: s.config.Password,
	})
	if err != nil {
		_ = db.Close(ctx)
		return errors.Wrapf(ErrConnection, "signin failed: %v", err)
	}

	if err := db.Use(ctx, s.config.Namespace, s.config.Database); err != nil {
		_ = db.Close(ctx)
		return errors.Wrapf(ErrConnection, "use failed: %v", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SurrealDB) Close() error {
	if s.db != nil {
		return s.db.Close(context.Background())
	}
	return nil
}

// Ping checks the database connection
func (s *SurrealDB) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrConnection
	}
	if _, err := s.db.Version(ctx); err != nil {
		return errors.Wrapf(ErrConnection, "%v", err)
	}
	return nil
}

// Query executes a query and returns one {status, result} wrapper per statement
func (s *SurrealDB) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	if s.db == nil {
		return nil, ErrConnection
	}
	return runQuery(ctx, s.db, query, vars)
}

// QueryOne executes a query and returns a single result
func (s *SurrealDB) QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	results, err := s.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, ErrNotFound
	}

	// Unwrap the response wrapper {status: "OK", result: [...]}
	first := results[0]
	if resp, ok := first.(map[string]interface{}); ok {
		if status, ok := resp["status"].(string); ok && status == "OK" {
			if resultData, ok := resp["result"].([]interface{}); ok {
				if len(resultData) == 0 {
					return nil, ErrNotFound
				}
				return resultData[0], nil
			}
			// Scalar results (count(), math::max) come back unwrapped
			return resp["result"], nil
		}
	}

	return first, nil
}

// Execute runs a query without returning results
func (s *SurrealDB) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	_, err := s.Query(ctx, query, vars)
	return err
}

// BeginTx starts a new transaction
func (s *SurrealDB) BeginTx(ctx context.Context) (Transaction, error) {
	if s.db == nil {
		return nil, ErrConnection
	}

	return &SurrealTransaction{
		db:      s.db,
		ctx:     ctx,
		builder: NewTxBuilder(),
	}, nil
}

func runQuery(ctx context.Context, db *surrealdb.DB, query string, vars map[string]interface{}) ([]interface{}, error) {
	results, err := surrealdb.Query[interface{}](ctx, db, query, vars)
	if err != nil {
		return nil, classifyStatementError(err.Error())
	}
	if results == nil {
		return nil, nil
	}

	output := make([]interface{}, 0, len(*results))
	var failures []error
	for _, r := range *results {
		if r.Status != "OK" {
			if r.Error != nil {
				failures = append(failures, classifyStatementError(r.Error.Message))
			} else {
				failures = append(failures, ErrQuery)
			}
			continue
		}
		output = append(output, map[string]interface{}{
			"status": r.Status,
			"result": r.Result,
		})
	}
	if len(failures) > 0 {
		return nil, firstFailure(failures)
	}

	return output, nil
}

// classifyStatementError maps SurrealDB statement failures onto the package
// sentinels so repositories never parse driver text themselves.
func classifyStatementError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, ThrowRevisionConflict):
		return errors.Wrap(ErrConflict, msg)
	case strings.Contains(lower, ThrowApplicationNotFound):
		return errors.Wrap(ErrNotFound, msg)
	case strings.Contains(lower, ThrowJobHasApplications):
		return errors.Wrap(ErrInUse, msg)
	case strings.Contains(lower, "already contains"), strings.Contains(lower, "already exists"):
		return errors.Wrap(ErrDuplicate, msg)
	}
	return errors.Wrap(ErrQuery, msg)
}

// SurrealTransaction implements Transaction for SurrealDB.
// Statements are namespaced through a TxBuilder and sent as one batch on Commit.
type SurrealTransaction struct {
	db        *surrealdb.DB
	ctx       context.Context
	builder   *TxBuilder
	committed bool
}

func (t *SurrealTransaction) Query(_ context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	t.builder.Add(query, vars)
	return nil, nil
}

func (t *SurrealTransaction) QueryOne(_ context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	t.builder.Add(query, vars)
	return nil, nil
}

func (t *SurrealTransaction) Execute(_ context.Context, query string, vars map[string]interface{}) error {
	t.builder.Add(query, vars)
	return nil
}

// Commit sends the batch and fails if any statement failed
func (t *SurrealTransaction) Commit() error {
	if t.committed {
		return nil
	}

	query, vars := t.builder.Build()
	if query == "" {
		t.committed = true
		return nil
	}

	if _, err := runQuery(t.ctx, t.db, query, vars); err != nil {
		return errors.Wrap(err, "commit failed")
	}

	t.committed = true
	return nil
}

func (t *SurrealTransaction) Rollback() error {
	t.builder = NewTxBuilder()
	return nil
}

// firstFailure picks the most specific error out of a failed batch. A THROW
// in one statement makes every sibling report "cancelled transaction".
func firstFailure(errs []error) error {
	for _, err := range errs {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
