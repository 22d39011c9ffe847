package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/diary-app/waiting-times/services/exporter/internal/models"
)

// sqliteLayout formats window bounds for comparison against datetime(at_t).
const sqliteLayout = "2006-01-02 15:04:05"

// sqliteTextLayout is how at_t is written and read back, with milliseconds.
const sqliteTextLayout = "2006-01-02 15:04:05.000"

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS %s (
    attr_id       TEXT NOT NULL,
    waitingperiod INTEGER,
    at_t          TEXT NOT NULL
)`

const sqliteCountSQL = `
SELECT COUNT(*)
FROM %s
WHERE waitingperiod IS NOT NULL
  AND datetime(at_t) >= ?
  AND datetime(at_t) < ?`

const sqliteSampledSQL = `
SELECT CAST(attr_id AS TEXT), CAST(waitingperiod AS INTEGER), strftime('%%Y-%%m-%%d %%H:%%M:%%f', at_t)
FROM (
    SELECT attr_id, waitingperiod, at_t,
        ROW_NUMBER() OVER (
            PARTITION BY attr_id, CAST(strftime('%%s', at_t) AS INTEGER) / 600
            ORDER BY julianday(at_t) DESC
        ) AS rn
    FROM %s
    WHERE waitingperiod IS NOT NULL
      AND datetime(at_t) >= ?
      AND datetime(at_t) < ?
) w
WHERE w.rn = 1
ORDER BY attr_id, julianday(at_t) DESC`

const sqliteInsertSQL = `INSERT INTO %s (attr_id, waitingperiod, at_t) VALUES (?, ?, ?)`

// SQLiteStore reads observations from a local SQLite snapshot. at_t holds
// wall-clock text, so window bounds are compared by their wall clock too.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens (or creates) the database at path and pings it.
func NewSQLite(ctx context.Context, path, table string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("open sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeErr("open sqlite", err)
	}
	return &SQLiteStore{db: db, table: table}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// EnsureSchema creates the observation table if it is missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteSchemaSQL, s.table)); err != nil {
		return storeErr("create schema", err)
	}
	return nil
}

// InsertObservations writes raw observations in one transaction.
func (s *SQLiteStore) InsertObservations(ctx context.Context, records []models.WaitRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(sqliteInsertSQL, s.table))
	if err != nil {
		return storeErr("prepare insert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var minutes any
		if rec.WaitMinutes != nil {
			minutes = *rec.WaitMinutes
		}
		at := rec.ObservedAt.Format(sqliteTextLayout)
		if _, err := stmt.ExecContext(ctx, string(rec.AttractionID), minutes, at); err != nil {
			return storeErr("insert observation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit insert", err)
	}
	return nil
}

// CountObservations counts rows with a non-null waitingperiod in [start, end).
func (s *SQLiteStore) CountObservations(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(sqliteCountSQL, s.table),
		start.Format(sqliteLayout), end.Format(sqliteLayout))
	if err := row.Scan(&n); err != nil {
		return 0, storeErr("count observations", err)
	}
	return n, nil
}

// FetchSampled returns the latest row per attraction and 10-minute bucket in
// [start, end), ordered by attr_id and at_t descending. at_t is read back as
// a UTC wall clock.
func (s *SQLiteStore) FetchSampled(ctx context.Context, start, end time.Time) ([]models.WaitRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(sqliteSampledSQL, s.table),
		start.Format(sqliteLayout), end.Format(sqliteLayout))
	if err != nil {
		return nil, storeErr("query observations", err)
	}
	defer rows.Close()

	records := make([]models.WaitRecord, 0)
	for rows.Next() {
		var (
			id      sql.NullString
			minutes sql.NullInt64
			atText  string
		)
		if err := rows.Scan(&id, &minutes, &atText); err != nil {
			return nil, storeErr("scan observation", err)
		}
		if !id.Valid || !minutes.Valid {
			continue
		}
		at, err := time.ParseInLocation(sqliteTextLayout, atText, time.UTC)
		if err != nil {
			return nil, storeErr("parse at_t", err)
		}
		m := int(minutes.Int64)
		records = append(records, models.WaitRecord{
			AttractionID: models.AttractionID(id.String),
			WaitMinutes:  &m,
			ObservedAt:   at,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read observations", err)
	}
	return records, nil
}
