// Package database provides database connectivity for the Hiretrack API.
//
// The database package abstracts SurrealDB operations and provides
// a consistent interface for data access across the application.
//
// # Connection Management
//
//	db := database.NewSurrealDB(database.Config{
//	    Host:      "localhost",
//	    Port:      "8000",
//	    User:      "root",
//	    Password:  "root",
//	    Namespace: "hiretrack",
//	    Database:  "main",
//	})
//	if err := db.Connect(ctx); err != nil { ... }
//	if err := database.Migrate(ctx, db, logger); err != nil { ... }
//
// # Schema
//
// Schema files live in migrations/ and are embedded into the binary. Migrate
// applies the ones not yet recorded in the schema_migration table.
//
// # Guarded Writes
//
// Revision checks run inside a single batch and THROW on failure:
//
//	LET $updated = (UPDATE type::record($id) SET ... WHERE revision = $expected);
//	IF array::len($updated) = 0 { THROW "revision conflict" };
//
// The thrown text is mapped to ErrConflict (or ErrNotFound for
// "application not found"), so callers only test sentinels.
package database
