package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"buildout/internal/types"
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeShape returns the parcel polygons as little-endian EWKB, or nil.
func encodeShape(mp *geom.MultiPolygon) (any, error) {
	if mp == nil || mp.NumPolygons() == 0 {
		return nil, nil
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "database: encode shape")
	}
	return data, nil
}

func decodeShape(data []byte) (*geom.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "database: decode shape")
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return nil, eris.Errorf("database: stored shape is %T, want multipolygon", g)
	}
	return mp, nil
}

// SaveRun stores a run and its parcels in one transaction and returns the
// new run id. Parcel and splittable counts are derived from parcels.
func (d *Database) SaveRun(ctx context.Context, run types.Run, parcels []types.AggregatedParcel) (string, error) {
	run.ID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Parcels = len(parcels)
	run.Splittable = 0
	for _, p := range parcels {
		if p.Post != nil {
			run.PrePost = true
		}
		if p.Splittable() {
			run.Splittable++
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "database: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, d.rebind(
		`INSERT INTO buildout_runs (id, municipality, jurisdiction, source, pre_post, parcels, splittable, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Municipality, run.Jurisdiction, run.Source, boolInt(run.PrePost), run.Parcels, run.Splittable, run.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "database: insert run")
	}

	stmt, err := tx.PrepareContext(ctx, d.rebind(
		`INSERT INTO buildout_parcels (run_id, parcel_id, zone_id, sewer_system, cz_pre, no3_pre, split_pre,
		 cz_post, no3_post, split_post, fragments, shape)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return "", eris.Wrap(err, "database: prepare parcel insert")
	}
	defer stmt.Close()

	for _, p := range parcels {
		shape, err := encodeShape(p.Shape)
		if err != nil {
			return "", err
		}
		var czPost, no3Post, splitPost any
		if p.Post != nil {
			czPost, no3Post, splitPost = p.Post.CZ, p.Post.NO3, boolInt(p.Post.CanSplit)
		}
		_, err = stmt.ExecContext(ctx,
			run.ID, p.ParcelID, p.ZoneID, string(p.System), p.Pre.CZ, p.Pre.NO3, boolInt(p.Pre.CanSplit),
			czPost, no3Post, splitPost, p.Fragments, shape,
		)
		if err != nil {
			return "", eris.Wrapf(err, "database: insert parcel %s", p.ParcelID)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "database: commit run")
	}
	return run.ID, nil
}

// ListRuns returns stored runs, newest first.
func (d *Database) ListRuns(ctx context.Context) ([]types.Run, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, municipality, jurisdiction, source, pre_post, parcels, splittable, created_at
		 FROM buildout_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "database: query runs")
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		var r types.Run
		var prePost int
		if err := rows.Scan(&r.ID, &r.Municipality, &r.Jurisdiction, &r.Source, &prePost, &r.Parcels, &r.Splittable, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "database: scan run")
		}
		r.PrePost = prePost == 1
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "database: iterate runs")
}

const parcelColumns = `parcel_id, zone_id, sewer_system, cz_pre, no3_pre, split_pre,
	cz_post, no3_post, split_post, fragments, shape`

// QueryParcels returns every parcel of a run ordered by parcel, zone and system.
func (d *Database) QueryParcels(ctx context.Context, runID string) ([]types.AggregatedParcel, error) {
	return d.queryParcels(ctx,
		`SELECT `+parcelColumns+` FROM buildout_parcels WHERE run_id = ?
		 ORDER BY parcel_id, zone_id, sewer_system`, runID)
}

// QuerySplittable returns the parcels of a run that can be subdivided, using
// the post-erasure decision when the run has one.
func (d *Database) QuerySplittable(ctx context.Context, runID string) ([]types.AggregatedParcel, error) {
	return d.queryParcels(ctx,
		`SELECT `+parcelColumns+` FROM buildout_parcels
		 WHERE run_id = ? AND COALESCE(split_post, split_pre) = 1
		 ORDER BY parcel_id, zone_id, sewer_system`, runID)
}

func (d *Database) queryParcels(ctx context.Context, query string, args ...any) ([]types.AggregatedParcel, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "database: query parcels")
	}
	defer rows.Close()

	var parcels []types.AggregatedParcel
	for rows.Next() {
		var (
			p                          types.AggregatedParcel
			system                     string
			splitPre                   int
			czPost, no3Post, splitPost sql.NullInt64
			shape                      []byte
		)
		err := rows.Scan(&p.ParcelID, &p.ZoneID, &system, &p.Pre.CZ, &p.Pre.NO3, &splitPre,
			&czPost, &no3Post, &splitPost, &p.Fragments, &shape)
		if err != nil {
			return nil, eris.Wrap(err, "database: scan parcel")
		}
		p.System = types.System(system)
		p.Pre.CanSplit = splitPre == 1
		if czPost.Valid {
			p.Post = &types.Buildout{
				CZ:       int(czPost.Int64),
				NO3:      int(no3Post.Int64),
				CanSplit: splitPost.Int64 == 1,
			}
		}
		if p.Shape, err = decodeShape(shape); err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	return parcels, eris.Wrap(rows.Err(), "database: iterate parcels")
}

// DeleteRun removes a run and its parcels.
func (d *Database) DeleteRun(ctx context.Context, runID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "database: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM buildout_parcels WHERE run_id = ?`), runID); err != nil {
		return eris.Wrapf(err, "database: delete parcels of %s", runID)
	}
	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM buildout_runs WHERE id = ?`), runID)
	if err != nil {
		return eris.Wrapf(err, "database: delete run %s", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("database: run %s not found", runID)
	}
	return eris.Wrap(tx.Commit(), "database: commit delete")
}
