// Package store holds the persistence contracts shared by the Postgres and
// SQLite backends: the item repository, the DBTX/transaction helpers and
// the not-found sentinels.
package store
