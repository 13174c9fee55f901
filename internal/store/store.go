// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists reconciled registry entries, the provenance
// ledger, derived semantic items, and the query cache in one SQLite
// database. The store owns entry lifecycle exclusively: entries are
// created and deleted as whole rows during reconciliation, never
// field-patched.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/registry-engine/pkg/types"
)

const dbFile = "registry.db"

// Store manages the registry SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the registry database at DataDir/registry.db and
// creates the schema if it does not exist. Foreign keys are enabled so
// deleting an entry cascades to its semantic item.
func Open(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nameoforg TEXT,
			inn TEXT,
			ogrn TEXT,
			productname TEXT,
			okpd2 TEXT,
			tnved TEXT,
			regnumber TEXT,
			registernumber TEXT,
			percent REAL,
			domestic INTEGER,
			level INTEGER,
			regdate TEXT,
			expirydate TEXT,
			source_file TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_inn ON entries(inn)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_tnved ON entries(tnved)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_okpd2 ON entries(okpd2)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_regdate ON entries(regdate)`,
		`CREATE TABLE IF NOT EXISTS provenance (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			rows_inserted INTEGER NOT NULL,
			applied_at TEXT NOT NULL,
			UNIQUE(file_name, file_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS semantic_items (
			entry_id INTEGER PRIMARY KEY REFERENCES entries(id) ON DELETE CASCADE,
			normalized_text TEXT NOT NULL,
			synonyms TEXT,
			embedding BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS query_cache (
			query_hash TEXT PRIMARY KEY,
			original_text TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Entry is a persisted canonical record with its surrogate identifier and
// source-file label.
type Entry struct {
	ID         int64
	Record     types.CanonicalRecord
	SourceFile string
}

// entryColumns is the column list shared by entry SELECTs.
const entryColumns = `id, nameoforg, inn, ogrn, productname, okpd2, tnved,
	regnumber, registernumber, percent, domestic, level, regdate, expirydate, source_file`

// scanEntry reads one entry row into an Entry.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		texts    [8]sql.NullString
		percent  sql.NullFloat64
		domestic sql.NullBool
		level    sql.NullInt64
		dates    [2]sql.NullString
	)
	err := rows.Scan(
		&e.ID,
		&texts[0], &texts[1], &texts[2], &texts[3], &texts[4], &texts[5], &texts[6], &texts[7],
		&percent, &domestic, &level, &dates[0], &dates[1],
		&e.SourceFile,
	)
	if err != nil {
		return Entry{}, err
	}

	r := &e.Record
	for i, dst := range []**string{
		&r.OrgName, &r.INN, &r.OGRN, &r.ProductName,
		&r.OKPD2, &r.TNVED, &r.RegNumber, &r.RegistryNumber,
	} {
		if texts[i].Valid {
			v := texts[i].String
			*dst = &v
		}
	}
	if percent.Valid {
		v := percent.Float64
		r.Percent = &v
	}
	if domestic.Valid {
		v := domestic.Bool
		r.Domestic = &v
	}
	if level.Valid {
		v := int(level.Int64)
		r.Level = &v
	}
	for i, dst := range []**time.Time{&r.RegisteredAt, &r.ExpiresAt} {
		if dates[i].Valid && dates[i].String != "" {
			t, err := time.Parse(types.DateLayout, dates[i].String)
			if err != nil {
				return Entry{}, fmt.Errorf("entry %d: bad stored date %q: %w", e.ID, dates[i].String, err)
			}
			*dst = &t
		}
	}
	return e, nil
}

// entryArgs renders a record into insert arguments matching entryColumns
// minus the id.
func entryArgs(r types.CanonicalRecord, sourceFile string) []any {
	return []any{
		nullText(r.OrgName), nullText(r.INN), nullText(r.OGRN), nullText(r.ProductName),
		nullText(r.OKPD2), nullText(r.TNVED), nullText(r.RegNumber), nullText(r.RegistryNumber),
		nullFloat(r.Percent), nullBool(r.Domestic), nullInt(r.Level),
		nullDate(r.RegisteredAt), nullDate(r.ExpiresAt),
		sourceFile,
	}
}

func nullText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(types.DateLayout)
}

// Entries returns all persisted entries ordered by id.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntriesByID returns the entries with the given surrogate ids, ordered by id.
func (s *Store) EntriesByID(ctx context.Context, ids []int64) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries by id: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	return string(placeholders), args
}
