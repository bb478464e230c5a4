package calibdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE variable(
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE calibration(
			id INTEGER PRIMARY KEY,
			created_at INT NOT NULL,
			class_name TEXT NOT NULL,
			axis TEXT NOT NULL,
			manual BOOLEAN NOT NULL,
			size_meters REAL NOT NULL,
			span_pixels INT NOT NULL,
			raw_estimate REAL NOT NULL,
			scale REAL NOT NULL
		);
		CREATE INDEX idx_calibration_created_at ON calibration (created_at);
	`))

	return migs
}
