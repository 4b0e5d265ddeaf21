package database

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestOpen_MigratesSchema(t *testing.T) {
	db, err := Open(t.Context(), "sqlite", filepath.Join(t.TempDir(), "tick.db"), slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"users", "tasks", "conversations", "messages"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tick.db")

	db, err := Open(t.Context(), "sqlite", path, nil)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db.Close()

	db, err = Open(t.Context(), "sqlite", path, nil)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	db.Close()
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(t.Context(), "postgres", "x", nil); err == nil {
		t.Fatal("Open with unknown driver should error")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 123, time.FixedZone("CDT", -5*3600))
	got := ParseTime(FormatTime(now))
	if !got.Equal(now) {
		t.Errorf("ParseTime(FormatTime(%v)) = %v", now, got)
	}
	if !ParseTime("garbage").IsZero() {
		t.Error("ParseTime(garbage) should be zero")
	}
}
