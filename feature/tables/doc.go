// Package tables exposes bulk operations on map-typed rows, for the CLI and
// over HTTP.
//
// # Endpoints
//
//	POST /tables/:table/:operation   operation is copy, insert, update, upsert (or merge) or delete
//	GET  /tables/:table/columns      catalog of the table, ?schema= selects the schema
//
// The POST body is
//
//	{"rows": [...], "schema": "", "primary_keys": [], "exclude": [],
//	 "batch_size": 0, "timeout_seconds": 0, "skip_identity": false}
//
// and the response echoes the rows with generated identities written back.
// Failures answer {"error": ..., "step": ...}; a missing table is a 404.
package tables
