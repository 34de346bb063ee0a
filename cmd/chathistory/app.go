package main

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"chathistory/internal/clientstore"
	"chathistory/internal/config"
	"chathistory/internal/logging"
	"chathistory/internal/redis"
	"chathistory/internal/storage"
)

// app holds the shared dependencies every command opens.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	rdb   *redis.Client
	store clientstore.Store
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := logging.Init(cfg.Log); err != nil {
		return nil, errors.Wrap(err, "init logging")
	}

	dbType := cfg.BasicConfig.Database
	log.Info().Str("db", dbType).Str("store", cfg.BasicConfig.ClientStore).Msg("opening storage")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}

	a := &app{cfg: cfg, db: db}
	if cfg.Redis.Enabled {
		a.rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create redis client")
		}
	}
	a.store, err = clientstore.New(cfg.BasicConfig.ClientStore, db, dbType, a.rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
