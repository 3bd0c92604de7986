// Package database handles database connections.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to properly configure
// MySQL, PostgreSQL and SQLite connections based on the application's configuration.
//
// # Connect
//
// Connect picks the GORM dialector from Config.Driver, configures the pool and pings
// the server. MySQL connections enable multiStatements, which the staging table DDL
// of bulk operations relies on. An in-memory SQLite database is limited to a single
// connection, since each connection would otherwise see its own empty database.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
package database
