package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diary-app/waiting-times/services/exporter/internal/models"
)

// ErrStore marks connection and query failures.
var ErrStore = errors.New("store error")

// Store reads wait-time observations for a time window.
type Store interface {
	// CountObservations counts rows with a non-null wait in [start, end).
	CountObservations(ctx context.Context, start, end time.Time) (int, error)
	// FetchSampled returns the latest row per attraction and 10-minute
	// bucket in [start, end), ordered by attraction and time descending.
	FetchSampled(ctx context.Context, start, end time.Time) ([]models.WaitRecord, error)
	Close()
}

// Open picks a backend from the URL scheme: postgres:// and postgresql://
// use a pgx pool, sqlite:// and file: use SQLite. loc is the export timezone
// that zoned timestamps are reported in.
func Open(ctx context.Context, databaseURL, table string, loc *time.Location) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := NewPostgres(ctx, databaseURL, table, loc)
		if err != nil {
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		store, err := NewSQLite(ctx, sqlitePath(databaseURL), table)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unsupported DATABASE_URL scheme", ErrStore)
	}
}

func sqlitePath(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "sqlite://") {
		return strings.TrimPrefix(databaseURL, "sqlite://")
	}
	return databaseURL
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
