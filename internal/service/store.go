package service

import (
	"fmt"

	"pacer/internal/database"
	"pacer/internal/repository"
	"pacer/internal/repository/memstore"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// OpenStore returns the record store for driver. The database handle is nil
// for the in-memory store; callers own closing it otherwise.
func OpenStore(driver string, cfg database.Config) (Store, *database.DB, error) {
	switch driver {
	case StoreDriverMemory:
		return memstore.New(), nil, nil
	case StoreDriverPostgres, "":
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repository.NewRepositories(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
