// Package store provides the boundary between the table cache and the relational
// database holding the shared dataset.
//
// The package focuses on:
//   - A unified interface (IStore) offering exactly the three operations the cache
//     needs: fetch one row by primary key, upsert changed columns, delete one row
//   - Table definitions carrying the statement shapes of every logical entity table
//   - Unified error reporting through the Error type and its return codes
//
// Key Components:
//
//   - IStore Interface: The core abstraction. Rows are Fields (column name to value),
//     keys are the values of the table's key columns in order. Implementations must be
//     safe for concurrent use: the write coalescer upserts every pending identifier of
//     a flush tick at the same time.
//
//   - Table: name, key columns and the select, insert and delete statement templates
//     of a table. The insert template is an upsert with four {} holes which the store
//     fills with the changed columns; select and delete bind the key to $1..$n.
//
//   - Error System: Every failure of a store is an *Error with a RetCode, so callers
//     can tell an invalid table definition from an unreachable database.
//
// Implementations:
//
//	- Postgres Store (pgstore): executes the table statements through a pgx
//	  connection pool. Available in the "github.com/ValentinKolb/dSync/lib/store/pgstore"
//	  package.
//
//	- Memory Store (memstore): keeps rows in process memory. Suitable for single host
//	  development runs and tests; nodes sharing a memstore must share the process.
//	  Available in the "github.com/ValentinKolb/dSync/lib/store/memstore" package.
package store
