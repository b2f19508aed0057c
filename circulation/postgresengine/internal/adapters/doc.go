// Package adapters provide database adapter implementations for the PostgreSQL circulation store.
//
// The adapters hide the differences between pgxpool.Pool, sql.DB and sqlx.DB behind one
// DBAdapter interface with plain queries, statements and transactions. Queries use positional
// $n placeholders, which all three drivers understand.
//
// A replica connection is optional; QueryReplica falls back to the primary without one.
package adapters
