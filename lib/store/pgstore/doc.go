// Package pgstore implements store.IStore for PostgreSQL using a pgx connection pool.
//
// Rows are read with the table's select statement and returned as column maps
// (pgx.RowToMap), so every column of the row ends up in the cache entry. Writes
// render the table's upsert template with RenderUpsert: one INSERT ... ON CONFLICT
// ... DO UPDATE statement per identifier, naming only the key columns and the
// columns that actually changed.
//
// Statements must use ROW() on the update side when a single column may change:
//
//	INSERT INTO userinfo({}) VALUES({}) ON CONFLICT (user_id) DO UPDATE SET ({}) = ROW({})
//
// PostgreSQL rejects a parenthesised single value as the source of a column list.
package pgstore
