package storage

import (
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/migrations"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
)

// MemoryDriver keeps run history in process memory.
const MemoryDriver = "memory"

// InitStore opens the run store for driver and brings its schema up to date.
func InitStore(driver, dsn string) (storage.Store, error) {
	if driver == "" || driver == MemoryDriver {
		return storage.NewMockStore(), nil
	}
	store, err := NewSQLStore(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(store.DB().DB, driver); err != nil {
		store.Close()
		return nil, errors.WithMessage(err, "init store")
	}
	return store, nil
}
