package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bedwatch-backend/internal/bedreport"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSqlite   = "sqlite"
	DriverLibsql   = "libsql"
	DriverPostgres = "pgx"
)

var sqliteSchema = []string{
	`create table if not exists snapshots (
		id integer primary key autoincrement,
		captured_at integer not null unique,
		record_count integer not null
	)`,
	`create table if not exists snapshot_hospitals (
		snapshot_id integer not null references snapshots(id) on delete cascade,
		position integer not null,
		sr_no text not null,
		name text not null,
		city text not null,
		total_beds integer not null,
		occupied_beds integer not null,
		available_beds integer not null,
		last_updated text not null,
		source_row integer not null,
		bed_mismatch integer not null,
		primary key (snapshot_id, position)
	)`,
}

var postgresSchema = []string{
	`create table if not exists snapshots (
		id bigserial primary key,
		captured_at bigint not null unique,
		record_count integer not null
	)`,
	`create table if not exists snapshot_hospitals (
		snapshot_id bigint not null references snapshots(id) on delete cascade,
		position integer not null,
		sr_no text not null,
		name text not null,
		city text not null,
		total_beds integer not null,
		occupied_beds integer not null,
		available_beds integer not null,
		last_updated text not null,
		source_row integer not null,
		bed_mismatch integer not null,
		primary key (snapshot_id, position)
	)`,
}

// Archive appends every committed snapshot to a SQL database, it backs the history
// commands of the CLI. sqlite, libsql (turso) and postgres (pgx) are supported.
type Archive struct {
	db     *sql.DB
	driver string
}

// OpenArchive opens the database for a driver and creates the tables when missing.
func OpenArchive(ctx context.Context, driver, dsn string) (*Archive, error) {
	if dsn == "" {
		return nil, fmt.Errorf("archive: a dsn was not specified")
	}

	switch driver {
	case DriverSqlite:
		return openSqlite(ctx, dsn)
	case DriverLibsql, DriverPostgres:
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	archive, err := NewArchive(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return archive, nil
}

func openSqlite(ctx context.Context, path string) (*Archive, error) {
	if path != ":memory:" {
		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open(DriverSqlite, path)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, WAL lets readers proceed alongside it
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	_, err = db.ExecContext(ctx, "PRAGMA foreign_keys=ON")
	if err != nil {
		db.Close()
		return nil, err
	}

	archive, err := NewArchive(ctx, db, DriverSqlite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return archive, nil
}

// NewArchive wraps an already opened database.
func NewArchive(ctx context.Context, db *sql.DB, driver string) (*Archive, error) {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("archive: create schema: %w", err)
		}
	}
	return &Archive{db: db, driver: driver}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// rebind rewrites `?` placeholders into `$n` for postgres.
func (a *Archive) rebind(query string) string {
	if a.driver != DriverPostgres {
		return query
	}
	var out strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(c)
	}
	return out.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Persist stores a snapshot, it is a no-op if a snapshot with the same capture time exists.
func (a *Archive) Persist(ctx context.Context, snap Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	capturedAt := snap.CapturedAt().UnixMilli()

	var exists int
	err = tx.QueryRowContext(
		ctx,
		a.rebind("select count(*) from snapshots where captured_at = ?"),
		capturedAt,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}

	var id int64
	err = tx.QueryRowContext(
		ctx,
		a.rebind("insert into snapshots (captured_at, record_count) values (?, ?) returning id"),
		capturedAt, snap.Len(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, a.rebind(`insert into snapshot_hospitals (
		snapshot_id, position, sr_no, name, city, total_beds, occupied_beds,
		available_beds, last_updated, source_row, bed_mismatch
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	var insertErr error
	snap.Each(func(i int, r bedreport.HospitalRecord) {
		if insertErr != nil {
			return
		}
		_, insertErr = stmt.ExecContext(
			ctx,
			id, i, r.SrNo, r.Name, r.City, r.TotalBeds, r.OccupiedBeds,
			r.AvailableBeds, r.LastUpdated, r.SourceRow, boolToInt(r.BedMismatch),
		)
	})
	if insertErr != nil {
		return fmt.Errorf("insert hospital: %w", insertErr)
	}

	return tx.Commit()
}

type ArchiveEntry struct {
	Id          int64
	CapturedAt  time.Time
	RecordCount int
}

// List returns the most recent snapshots first.
func (a *Archive) List(ctx context.Context, limit int) ([]ArchiveEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(
		ctx,
		a.rebind("select id, captured_at, record_count from snapshots order by captured_at desc limit ?"),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchiveEntry
	for rows.Next() {
		var entry ArchiveEntry
		var capturedAt int64
		err := rows.Scan(&entry.Id, &capturedAt, &entry.RecordCount)
		if err != nil {
			return nil, err
		}
		entry.CapturedAt = time.UnixMilli(capturedAt).UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Load reads an archived snapshot back, sql.ErrNoRows is returned for an unknown id.
func (a *Archive) Load(ctx context.Context, id int64) (Snapshot, error) {
	var capturedAt int64
	err := a.db.QueryRowContext(
		ctx,
		a.rebind("select captured_at from snapshots where id = ?"),
		id,
	).Scan(&capturedAt)
	if err != nil {
		return Snapshot{}, err
	}

	rows, err := a.db.QueryContext(ctx, a.rebind(`select
		sr_no, name, city, total_beds, occupied_beds, available_beds,
		last_updated, source_row, bed_mismatch
	from snapshot_hospitals where snapshot_id = ? order by position`), id)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var records []bedreport.HospitalRecord
	for rows.Next() {
		var r bedreport.HospitalRecord
		var mismatch int
		err := rows.Scan(
			&r.SrNo, &r.Name, &r.City, &r.TotalBeds, &r.OccupiedBeds, &r.AvailableBeds,
			&r.LastUpdated, &r.SourceRow, &mismatch,
		)
		if err != nil {
			return Snapshot{}, err
		}
		r.BedMismatch = mismatch != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	return New(time.UnixMilli(capturedAt), records), nil
}
