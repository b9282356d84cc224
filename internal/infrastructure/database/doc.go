// Package database opens the SQLite file that backs the command journal and
// keeps its schema current.
//
// Open applies the pragmas from config (WAL, busy timeout, foreign keys) via
// the DSN and limits the pool to SQLite's single writer. Migrate reads
// YYYYMMDD_HHMMSS_name.up.sql files from an fs.FS, normally the embedded
// migrations.FS:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Each applied migration is recorded with a checksum of its up script;
// editing a file after it has run makes Migrate fail with
// ErrMigrationChanged.
package database
