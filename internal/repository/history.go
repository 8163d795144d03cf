package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/model"
)

// HistoryRepository is the append-only audit log of stage transitions
type HistoryRepository struct {
	db database.Database
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db database.Database) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one entry. The application must exist; otherwise the
// batch throws and database.ErrNotFound is returned.
func (r *HistoryRepository) Append(ctx context.Context, entry *model.HistoryEntry) error {
	if !isRecordOf(entry.ApplicationID, "application") {
		return errors.Wrap(database.ErrNotFound, database.ThrowApplicationNotFound)
	}

	now := time.Now().UTC()
	entryID := newRecordID("application_history")

	tb := database.NewTxBuilder()
	tb.Add(`LET $target = (SELECT id FROM type::record($application))`,
		map[string]interface{}{"application": entry.ApplicationID})
	tb.AddRaw(`IF array::len($target) = 0 { THROW "` + database.ThrowApplicationNotFound + `" }`)
	tb.Add(createHistoryQuery, historyVars(entryID, entry.ApplicationID, entry, now))

	if _, err := database.ExecuteTransaction(ctx, r.db, tb); err != nil {
		return errors.Wrap(err, "append history")
	}

	entry.ID = entryID
	entry.ChangedOn = now
	return nil
}

// ListByApplication returns the chain ordered by (seq, changed_on). seq is
// the revision a transition produced, so clock skew between replicas cannot
// reorder the chain. The result is a finished slice, so repeated calls
// restart from the top.
func (r *HistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]*model.HistoryEntry, error) {
	query := `SELECT * FROM application_history WHERE application_id = $application ORDER BY seq ASC, changed_on ASC`
	results, err := r.db.Query(ctx, query, map[string]interface{}{"application": applicationID})
	if err != nil {
		return nil, err
	}

	rows := extractRows(results)
	entries := make([]*model.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, parseHistoryEntry(row))
	}
	return entries, nil
}

func parseHistoryEntry(data map[string]interface{}) *model.HistoryEntry {
	entry := &model.HistoryEntry{
		ID:            convertSurrealID(data["id"]),
		ApplicationID: getString(data, "application_id"),
		NewStage:      model.Stage(getString(data, "new_stage")),
		ChangedByID:   getString(data, "changed_by_id"),
		Seq:           getInt(data, "seq"),
		ChangedOn:     parseTime(data["changed_on"]),
	}
	if old := getString(data, "old_stage"); old != "" {
		s := model.Stage(old)
		entry.OldStage = &s
	}
	return entry
}
