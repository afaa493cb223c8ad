// Package backend selects and builds the store implementation.
package backend

import (
	"context"

	"utangku/internal/store"
)

type Type string

const (
	Memory   Type = "memory"
	SQLite   Type = "sqlite"
	Postgres Type = "postgres"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case Memory, SQLite, Postgres:
		return true
	default:
		return false
	}
}

// Config holds what each backend needs to come up.
type Config struct {
	Type Type

	SQLiteDBPath string
	PostgresDSN  string
}

// Result bundles the store with its teardown.
type Result struct {
	Store   store.Store
	Cleanup func() error
}

// Factory creates a store from configuration.
type Factory interface {
	Create(ctx context.Context, cfg Config) (*Result, error)
}
