// Package database opens the SQLite file that backs the message archive.
//
// The archive is optional: it is only opened when archive.path is set in
// the configuration. Open configures WAL mode and a busy timeout so that
// message callbacks on several protocol goroutines can insert while the
// command goroutine reads.
//
// Schema changes are plain SQL files applied by Migrate from any fs.FS,
// normally the one embedded by package migrations:
//
//	db, err := database.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
