// Package repository implements SurrealDB storage for users, jobs,
// applications and their stage history.
//
// Every repository takes a database.Database. Mutations that must land
// together, such as a stage change and its history row, go through a
// batch transaction:
//
//	repo := NewApplicationRepository(db)
//	err := repo.TransitionWithHistory(ctx, app, expectedRevision, entry)
//	if errors.Is(err, database.ErrConflict) {
//	    // the stored revision moved on; re-read and retry
//	}
//
// Queries are parameterized with $variables and record ids pass through
// type::record(). The memory subpackage implements the same contracts for
// tests and single-process runs.
package repository
