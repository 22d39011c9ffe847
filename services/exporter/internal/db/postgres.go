package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diary-app/waiting-times/services/exporter/internal/models"
)

const pgCountSQL = `
SELECT COUNT(*)
FROM %s
WHERE waitingperiod IS NOT NULL
  AND at_t >= $1
  AND at_t < $2`

const pgSampledSQL = `
SELECT attr_id::text, TRUNC(waitingperiod)::integer, at_t
FROM (
    SELECT attr_id, waitingperiod, at_t,
        ROW_NUMBER() OVER (
            PARTITION BY attr_id, FLOOR(EXTRACT(EPOCH FROM at_t) / 600)
            ORDER BY at_t DESC
        ) AS rn
    FROM %s
    WHERE waitingperiod IS NOT NULL
      AND at_t >= $1
      AND at_t < $2
) w
WHERE w.rn = 1
ORDER BY attr_id, at_t DESC`

// PostgresStore reads observations through a pgx pool. timestamptz values
// are moved into loc before they are handed out; naive timestamp values keep
// the wall clock they were stored with.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	loc   *time.Location
}

// NewPostgres connects and pings the database. table must already be a
// validated identifier. A nil loc leaves timestamps as pgx returns them.
func NewPostgres(ctx context.Context, databaseURL, table string, loc *time.Location) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, storeErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr("connect", err)
	}
	return &PostgresStore{pool: pool, table: table, loc: loc}, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CountObservations counts rows with a non-null waitingperiod in [start, end).
func (s *PostgresStore) CountObservations(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(pgCountSQL, s.table), start, end).Scan(&n); err != nil {
		return 0, storeErr("count observations", err)
	}
	return n, nil
}

// FetchSampled returns the latest row per attraction and 10-minute bucket in
// [start, end), ordered by attr_id and at_t descending.
func (s *PostgresStore) FetchSampled(ctx context.Context, start, end time.Time) ([]models.WaitRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(pgSampledSQL, s.table), start, end)
	if err != nil {
		return nil, storeErr("query observations", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	zoned := len(fields) > 2 && fields[2].DataTypeOID == pgtype.TimestamptzOID

	records := make([]models.WaitRecord, 0)
	for rows.Next() {
		var (
			id      *string
			minutes *int
			at      time.Time
		)
		if err := rows.Scan(&id, &minutes, &at); err != nil {
			return nil, storeErr("scan observation", err)
		}
		if id == nil {
			continue
		}
		records = append(records, models.WaitRecord{
			AttractionID: models.AttractionID(*id),
			WaitMinutes:  minutes,
			ObservedAt:   observedAt(at, zoned, s.loc),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read observations", err)
	}
	return records, nil
}

// observedAt moves an instant read from a timestamptz column into loc, so it
// renders on the same calendar as the export window. pgx hands those back in
// time.Local.
func observedAt(at time.Time, zoned bool, loc *time.Location) time.Time {
	if !zoned || loc == nil {
		return at
	}
	return at.In(loc)
}
