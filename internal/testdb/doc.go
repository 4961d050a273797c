// Package testdb provides helpers for PostgreSQL integration tests.
//
// Tests obtain a migrated, emptied database with GetTestDBWithT, which skips
// the calling test when no database URL is configured:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    ...
//	}
//
// The URL is read from LITEVAULT_TEST_DB_URL, falling back to DATABASE_URL.
package testdb
