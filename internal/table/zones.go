package table

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"buildout/internal/types"
)

func parseZone(rec record, fm FieldMap) (types.ZoneRecord, error) {
	var z types.ZoneRecord
	var err error
	if z.ZoneID, err = rec.required(fm.ZoneID); err != nil {
		return z, err
	}
	z.MinLotMissing = rec.str(fm.MinLot) == ""
	if z.MinLot, err = rec.optionalFloat(fm.MinLot, 0); err != nil {
		return z, err
	}
	if z.ResDensity, err = rec.optionalFloat(fm.ResDensity, 0); err != nil {
		return z, err
	}
	return z, nil
}

// ReadZones loads a zoning layer. MINLOT and RESDENSITY may be absent; they
// read as 0 until classified, and such zones are flagged MinLotMissing.
func ReadZones(ctx context.Context, path string, fm FieldMap) ([]types.ZoneRecord, error) {
	var (
		mu    sync.Mutex
		zones []types.ZoneRecord
	)

	if IsShapefile(path) {
		err := readShapefile(ctx, path, func(rec record, shape *geom.MultiPolygon) error {
			z, err := parseZone(rec, fm)
			if err != nil {
				return err
			}
			z.Shape = shape
			zones = append(zones, z)
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "table: zones %s", path)
		}
		return zones, nil
	}

	err := readDelimited(ctx, path, func(rec record) error {
		z, err := parseZone(rec, fm)
		if err != nil {
			return err
		}
		mu.Lock()
		zones = append(zones, z)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "table: zones %s", path)
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].ZoneID < zones[j].ZoneID })
	return zones, nil
}

// WriteZones writes classified zones to a shapefile or delimited file.
func WriteZones(path string, zones []types.ZoneRecord, fm FieldMap) error {
	if IsShapefile(path) {
		sw, err := createShapefile(path, []shp.Field{
			shp.StringField(dbfName(fm.ZoneID), 32),
			shp.FloatField(dbfName(fm.MinLot), 19, 2),
			shp.FloatField(dbfName(fm.ResDensity), 19, 12),
		})
		if err != nil {
			return err
		}
		defer sw.Close()
		for _, z := range zones {
			attrs := map[string]any{dbfName(fm.ZoneID): z.ZoneID}
			// Unset zones keep blank numeric fields so they read back as missing.
			if !z.MinLotMissing {
				attrs[dbfName(fm.MinLot)] = z.MinLot
				attrs[dbfName(fm.ResDensity)] = z.ResDensity
			}
			if err := sw.write(multiPolygonToShape(z.Shape), attrs); err != nil {
				return err
			}
		}
		return nil
	}

	rows := make([][]string, len(zones))
	for i, z := range zones {
		rows[i] = []string{z.ZoneID, "", ""}
		if !z.MinLotMissing {
			rows[i][1] = strconv.FormatFloat(z.MinLot, 'f', -1, 64)
			rows[i][2] = strconv.FormatFloat(z.ResDensity, 'g', -1, 64)
		}
	}
	return WriteRows(path, []string{fm.ZoneID, fm.MinLot, fm.ResDensity}, rows)
}
