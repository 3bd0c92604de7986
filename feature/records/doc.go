// Package records provides map-typed rows for callers that only learn the
// columns at runtime, such as the CLI and the HTTP feature.
//
// Describe builds a merge descriptor over a set of row keys, so a []Row can go
// through any bulk operation and receive generated identities back under the
// key that carries the identity column.
//
// Store reads and writes JSON record files from disk, stdio, or S3/MinIO:
//
//	store := records.NewStore(client, cfg.Storage.Region)
//	rows, err := store.Read(ctx, "s3://imports/users/")
package records
