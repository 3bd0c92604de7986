// Package config loads the bulkmerge configuration.
//
// Values come from struct tag defaults, an optional .env file and the process
// environment, in increasing order of precedence. Nested keys map to upper-case
// environment variables joined by underscores, so merge.batch_size is read from
// MERGE_BATCH_SIZE.
//
// # Sections
//
//   - Server: HTTP port and API key for the serve command
//   - Database: driver, DSN parts and pool limits
//   - Storage: S3/MinIO credentials for record files
//   - Log: level and format
//   - Merge: engine defaults (batch size, command timeout, catalog cache TTL)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	engine := merge.New(d, loader, merge.WithConfig(cfg.Merge))
package config
