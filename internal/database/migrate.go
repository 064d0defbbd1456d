package database

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

var sqliteMigration = []string{
	`CREATE TABLE IF NOT EXISTS buildout_runs (
	id           TEXT PRIMARY KEY,
	municipality TEXT NOT NULL,
	jurisdiction TEXT NOT NULL,
	source       TEXT NOT NULL,
	pre_post     INTEGER NOT NULL,
	parcels      INTEGER NOT NULL,
	splittable   INTEGER NOT NULL,
	created_at   DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS buildout_parcels (
	run_id        TEXT NOT NULL REFERENCES buildout_runs(id) ON DELETE CASCADE,
	parcel_id     TEXT NOT NULL,
	zone_id       TEXT NOT NULL,
	sewer_system  TEXT NOT NULL,
	cz_pre        INTEGER NOT NULL,
	no3_pre       INTEGER NOT NULL,
	split_pre     INTEGER NOT NULL,
	cz_post       INTEGER,
	no3_post      INTEGER,
	split_post    INTEGER,
	fragments     INTEGER NOT NULL,
	shape         BLOB,
	PRIMARY KEY (run_id, parcel_id, zone_id, sewer_system)
)`,
	`CREATE INDEX IF NOT EXISTS idx_buildout_runs_created_at ON buildout_runs(created_at)`,
}

// Oracle has no IF NOT EXISTS; an existing object raises ORA-00955.
var oracleMigration = []string{
	`CREATE TABLE buildout_runs (
	id           VARCHAR2(36) PRIMARY KEY,
	municipality VARCHAR2(128) NOT NULL,
	jurisdiction VARCHAR2(64) NOT NULL,
	source       VARCHAR2(512) NOT NULL,
	pre_post     NUMBER(1) NOT NULL,
	parcels      NUMBER(10) NOT NULL,
	splittable   NUMBER(10) NOT NULL,
	created_at   TIMESTAMP NOT NULL
)`,
	`CREATE TABLE buildout_parcels (
	run_id        VARCHAR2(36) NOT NULL REFERENCES buildout_runs(id) ON DELETE CASCADE,
	parcel_id     VARCHAR2(64) NOT NULL,
	zone_id       VARCHAR2(64) NOT NULL,
	sewer_system  VARCHAR2(16) NOT NULL,
	cz_pre        NUMBER(10) NOT NULL,
	no3_pre       NUMBER(10) NOT NULL,
	split_pre     NUMBER(1) NOT NULL,
	cz_post       NUMBER(10),
	no3_post      NUMBER(10),
	split_post    NUMBER(1),
	fragments     NUMBER(10) NOT NULL,
	shape         BLOB,
	PRIMARY KEY (run_id, parcel_id, zone_id, sewer_system)
)`,
	`CREATE INDEX idx_buildout_runs_created_at ON buildout_runs(created_at)`,
}

// Migrate creates the run and parcel tables when they do not exist.
func (d *Database) Migrate(ctx context.Context) error {
	stmts := sqliteMigration
	if d.config.Driver == DriverOracle {
		stmts = oracleMigration
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			if d.config.Driver == DriverOracle && strings.Contains(err.Error(), "ORA-00955") {
				continue
			}
			return eris.Wrapf(err, "database: migrate %s", d.config.Driver)
		}
	}
	return nil
}
