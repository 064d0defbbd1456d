package table

import (
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"buildout/internal/buildout"
	"buildout/internal/types"
)

// parcelColumns returns the attribute columns for aggregated parcels. The
// pre/post layout is used when any parcel carries a post-erasure variant.
func parcelColumns(fm FieldMap, prePost bool) []string {
	cols := []string{fm.ParcelID, fm.ZoneID, fm.System}
	if prePost {
		cols = append(cols, ColCZPre, ColCZPost, ColNO3Pre, ColNO3Post, ColSplitPre, ColSplitPost)
	} else {
		cols = append(cols, ColCZ, ColNO3, ColCanSplit)
	}
	return append(cols, ColFragments)
}

func hasPost(parcels []types.AggregatedParcel) bool {
	for _, p := range parcels {
		if p.Post != nil {
			return true
		}
	}
	return false
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parcelValues returns the attribute values in parcelColumns order.
func parcelValues(p types.AggregatedParcel, prePost bool) []any {
	vals := []any{p.ParcelID, p.ZoneID, string(p.System)}
	if prePost {
		post := types.Buildout{CZ: 1, NO3: 1}
		if p.Post != nil {
			post = *p.Post
		}
		vals = append(vals, p.Pre.CZ, post.CZ, p.Pre.NO3, post.NO3, flag(p.Pre.CanSplit), flag(post.CanSplit))
	} else {
		vals = append(vals, p.Pre.CZ, p.Pre.NO3, flag(p.Pre.CanSplit))
	}
	return append(vals, p.Fragments)
}

// WriteParcels writes aggregated parcels to a shapefile, whose polygons are
// the gathered fragment parts, or to a delimited file.
func WriteParcels(path string, parcels []types.AggregatedParcel, fm FieldMap) error {
	prePost := hasPost(parcels)
	cols := parcelColumns(fm, prePost)

	if IsShapefile(path) {
		fields := make([]shp.Field, len(cols))
		for i, c := range cols {
			if i < 3 {
				fields[i] = shp.StringField(dbfName(c), 32)
			} else {
				fields[i] = shp.NumberField(dbfName(c), 10)
			}
		}
		sw, err := createShapefile(path, fields)
		if err != nil {
			return err
		}
		defer sw.Close()

		for _, p := range parcels {
			vals := parcelValues(p, prePost)
			attrs := make(map[string]any, len(cols))
			for i, c := range cols {
				attrs[dbfName(c)] = vals[i]
			}
			if err := sw.write(multiPolygonToShape(p.Shape), attrs); err != nil {
				return eris.Wrapf(err, "table: parcel %s", p.ParcelID)
			}
		}
		return nil
	}

	rows := make([][]string, len(parcels))
	for i, p := range parcels {
		vals := parcelValues(p, prePost)
		row := make([]string, len(vals))
		for j, v := range vals {
			switch x := v.(type) {
			case string:
				row[j] = x
			case int:
				row[j] = strconv.Itoa(x)
			}
		}
		rows[i] = row
	}
	return WriteRows(path, cols, rows)
}

// AppendThinness reads a dissolved result table carrying area and perimeter
// columns, appends THINNESS to every row and writes it to out.
func AppendThinness(in, out string, fm FieldMap) (int, error) {
	header, rows, err := ReadRows(in)
	if err != nil {
		return 0, err
	}

	areaIdx, lengthIdx := -1, -1
	for i, h := range header {
		rec := newRecord(0, []string{h}, nil)
		switch {
		case rec.has(fm.ShapeArea):
			areaIdx = i
		case rec.has(fm.ShapeLength):
			lengthIdx = i
		}
	}
	if areaIdx < 0 {
		return 0, &AttributeError{Column: fm.ShapeArea, Reason: "is missing"}
	}
	if lengthIdx < 0 {
		return 0, &AttributeError{Column: fm.ShapeLength, Reason: "is missing"}
	}

	for i, row := range rows {
		rec := newRecord(i+1, header, row)
		area, err := rec.float(header[areaIdx])
		if err != nil {
			return 0, err
		}
		length, err := rec.float(header[lengthIdx])
		if err != nil {
			return 0, err
		}
		rows[i] = append(row, strconv.FormatFloat(buildout.Thinness(area, length), 'f', 6, 64))
	}

	if err := WriteRows(out, append(header, ColThinness), rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
