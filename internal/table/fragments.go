package table

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"buildout/internal/types"
)

// parseFragment maps one overlay row onto a fragment. Either a system column
// or a sewer join column must be present.
func parseFragment(rec record, fm FieldMap) (types.ParcelFragment, error) {
	var f types.ParcelFragment
	var err error

	if f.ParcelID, err = rec.required(fm.ParcelID); err != nil {
		return f, err
	}
	if f.ZoneID, err = rec.required(fm.ZoneID); err != nil {
		return f, err
	}
	if f.MinLot, err = rec.float(fm.MinLot); err != nil {
		return f, err
	}
	if f.ShapeArea, err = rec.float(fm.ShapeArea); err != nil {
		return f, err
	}
	if f.ShapeLength, err = rec.optionalFloat(fm.ShapeLength, 0); err != nil {
		return f, err
	}
	if f.SepticDensity, err = rec.optionalFloat(fm.SepticDensity, 0); err != nil {
		return f, err
	}
	if f.ParcelJoin, err = rec.joinID(fm.ParcelJoin); err != nil {
		return f, err
	}
	if f.WatershedJoin, err = rec.joinID(fm.WatershedJoin); err != nil {
		return f, err
	}

	hasSystem := fm.System != "" && rec.has(fm.System)
	hasSewer := fm.SewerJoin != "" && rec.has(fm.SewerJoin)
	if !hasSystem && !hasSewer {
		return f, &AttributeError{Line: rec.line, Column: fm.SewerJoin, Reason: "is missing and no system column was found"}
	}
	if hasSystem {
		f.System = types.System(strings.ToUpper(rec.str(fm.System)))
	}
	if hasSewer {
		if f.SewerJoin, err = rec.joinID(fm.SewerJoin); err != nil {
			return f, err
		}
	} else {
		f.SewerJoin = types.NoJoin
		if f.System == types.SystemSewer {
			f.SewerJoin = 0
		}
	}
	return f, nil
}

// ReadFragments loads an overlay table from a shapefile or a delimited file.
// Delimited rows arrive in no fixed order; the buildout engine does not depend
// on it.
func ReadFragments(ctx context.Context, path string, fm FieldMap) ([]types.ParcelFragment, error) {
	var (
		mu    sync.Mutex
		frags []types.ParcelFragment
	)

	if IsShapefile(path) {
		err := readShapefile(ctx, path, func(rec record, shape *geom.MultiPolygon) error {
			f, err := parseFragment(rec, fm)
			if err != nil {
				return err
			}
			f.Shape = shape
			frags = append(frags, f)
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "table: fragments %s", path)
		}
		return frags, nil
	}

	err := readDelimited(ctx, path, func(rec record) error {
		f, err := parseFragment(rec, fm)
		if err != nil {
			return err
		}
		mu.Lock()
		frags = append(frags, f)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "table: fragments %s", path)
	}
	return frags, nil
}
