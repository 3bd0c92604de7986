package cmd

import (
	"fmt"

	"bulkmerge/core/config"
	"bulkmerge/core/database"
	"bulkmerge/core/dialect"
	"bulkmerge/core/logger"
	"bulkmerge/core/merge"
	"bulkmerge/core/storage"
	"bulkmerge/feature/records"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	engine *merge.Engine
}

// bootstrap loads the configuration, builds the logger and connects to the database.
func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(envDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	kind, err := dialect.Parse(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Database.Driver = string(kind)

	d, loader, err := dialect.New(kind)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	l.Debug("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("name", cfg.Database.Name),
	)

	return &app{
		cfg:    cfg,
		log:    l,
		db:     db,
		engine: merge.New(d, loader, merge.WithLogger(l), merge.WithConfig(cfg.Merge)),
	}, nil
}

// store returns a record store, creating an object storage client only when
// one of the locations is an s3 URI.
func (a *app) store(locations ...string) (*records.Store, error) {
	for _, loc := range locations {
		if _, _, ok := storage.ParseURI(loc); !ok {
			continue
		}
		client, err := storage.NewClient(a.cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		return records.NewStore(client, a.cfg.Storage.Region), nil
	}
	return records.NewStore(nil, a.cfg.Storage.Region), nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
