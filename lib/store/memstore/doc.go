// Package memstore implements store.IStore in process memory.
//
// Rows are kept per table name and keyed by their key parts. Upserts merge the changed
// columns into the existing row, like the ON CONFLICT DO UPDATE statements of the
// Postgres store. The store ignores the statement templates of a table, only its name
// and key columns matter.
//
// It is meant for single host development runs and tests, not for production: the
// rows are lost when the process exits.
package memstore
