package backend

import (
	"context"
	"path/filepath"
	"testing"

	"utangku/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:  "sqlite",
		SQLiteDBPath: "/tmp/x.db",
		PostgresDSN:  "postgres://localhost/utangku",
	})
	if err != nil {
		t.Fatalf("convert config: %v", err)
	}
	if cfg.Type != SQLite || cfg.SQLiteDBPath != "/tmp/x.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "firestore"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.Create(context.Background(), Config{Type: Memory})
	if err != nil {
		t.Fatalf("create memory backend: %v", err)
	}
	if res.Store == nil || res.Cleanup == nil {
		t.Fatalf("incomplete result: %+v", res)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.Create(context.Background(), Config{
		Type:         SQLite,
		SQLiteDBPath: filepath.Join(t.TempDir(), "utangku.db"),
	})
	if err != nil {
		t.Fatalf("create sqlite backend: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestCreateUnknownBackend(t *testing.T) {
	f := NewFactory(nil)
	if _, err := f.Create(context.Background(), Config{Type: "firestore"}); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}
