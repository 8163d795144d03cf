// Package testdb provides isolated SurrealDB databases for repository tests.
//
// Each call to New connects with a fresh namespace, applies the embedded
// migrations and removes the namespace when the test ends:
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    repo := repository.NewJobRepository(tdb.DB)
//	    // ...
//	}
//
// Tests are skipped, not failed, when SurrealDB cannot be reached. Point
// them at a server with TEST_DB_HOST, TEST_DB_PORT, TEST_DB_USER and
// TEST_DB_PASSWORD.
package testdb
