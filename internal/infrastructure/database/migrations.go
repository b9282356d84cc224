package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	applied_at TEXT NOT NULL
)`

// Migration is one schema version loaded from a pair of
// YYYYMMDD_HHMMSS_name.{up,down}.sql files.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum is the hex SHA-256 of the up script. It is stored when the
// migration is applied so later edits to the file can be detected.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Migrate applies every pending migration in fsys, oldest first, each in its
// own transaction. A failed migration rolls back alone; earlier ones stay
// committed and the next Migrate resumes from the failure.
//
// Migrate refuses to run when an applied migration's up script no longer
// matches the checksum recorded for it (ErrMigrationChanged).
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return err
	}

	for _, m := range pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return fmt.Errorf("executing up SQL: %w", err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
				m.Version, m.Name, m.Checksum(), time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the newest applied migration. It is a no-op when
// nothing is applied.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1]

	available, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(available, func(m Migration) bool { return m.Version == latest.Version })
	if i < 0 {
		return fmt.Errorf("migration %s is applied but missing from the migration files", latest.Version)
	}
	m := available[i]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s (%s) has no down script", m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("reverting migration %s (%s): %w", m.Version, m.Name, err)
	}
	return nil
}

// MigrationStatus compares fsys with schema_migrations. Applied versions
// that no longer have files are reported as applied and otherwise ignored.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (applied []MigrationRecord, pending []Migration, err error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, nil, err
	}
	applied, err = db.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	available, err := LoadMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}

	recorded := make(map[string]string, len(applied))
	for _, r := range applied {
		recorded[r.Version] = r.Checksum
	}
	for _, m := range available {
		sum, done := recorded[m.Version]
		switch {
		case !done:
			pending = append(pending, m)
		case sum != "" && sum != m.Checksum():
			return nil, nil, fmt.Errorf("%w: %s (%s)", ErrMigrationChanged, m.Version, m.Name)
		}
	}
	return applied, pending, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			r         MigrationRecord
			appliedAt string
		)
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // written by Migrate
		records = append(records, r)
	}
	return records, rows.Err()
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // fn's error is the one worth reporting
		return err
	}
	return tx.Commit()
}

// LoadMigrations reads the migration files at the root of fsys, ordered by
// version. Files that do not follow the naming scheme are skipped, as is a
// down script without a matching up script. A nil fsys has no migrations.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		if !up {
			downs[version] = string(body)
			continue
		}
		byVersion[version] = &Migration{Version: version, Name: name, UpSQL: string(body)}
	}

	out := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		m.DownSQL = downs[version]
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFilename splits "20260118_120000_add_index.up.sql" into
// version "20260118_120000", name "add_index" and direction up. A file
// without a name part is named after its version.
func parseMigrationFilename(file string) (version, name string, up, ok bool) {
	base, isSQL := strings.CutSuffix(file, ".sql")
	if !isSQL {
		return "", "", false, false
	}
	if b, found := strings.CutSuffix(base, ".up"); found {
		base, up = b, true
	} else if b, found := strings.CutSuffix(base, ".down"); found {
		base = b
	} else {
		return "", "", false, false
	}

	date, rest, found := strings.Cut(base, "_")
	if !found || date == "" || rest == "" {
		return "", "", false, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	version = date + "_" + clock
	if name == "" {
		name = version
	}
	return version, name, up, true
}
