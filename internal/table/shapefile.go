package table

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// IsShapefile reports whether path names an ESRI shapefile.
func IsShapefile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".shp")
}

// readShapefile calls fn for each feature with its DBF attributes and its
// polygon parts. Non-polygon features carry a nil shape.
func readShapefile(ctx context.Context, path string, fn func(rec record, shape *geom.MultiPolygon) error) error {
	r, err := shp.Open(path)
	if err != nil {
		return eris.Wrapf(err, "table: open shapefile %s", path)
	}
	defer r.Close()

	fields := r.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.TrimRight(f.String(), "\x00")
	}

	line := 0
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		_, shape := r.Shape()

		cols := make([]string, len(fields))
		for i := range fields {
			cols[i] = r.Attribute(i)
		}

		var mp *geom.MultiPolygon
		if poly, ok := shape.(*shp.Polygon); ok {
			mp = polygonToMultiPolygon(poly)
		}
		if err := fn(newRecord(line, header, cols), mp); err != nil {
			return err
		}
	}
	return eris.Wrapf(r.Err(), "table: read shapefile %s", path)
}

// polygonToMultiPolygon rebuilds the polygons of a shapefile record. Outer
// rings run clockwise; each counter-clockwise ring is attached as a hole to
// the first outer ring containing it. A record with no clockwise ring, or a
// hole no outer ring contains, yields one polygon per ring. Coordinates stay
// in the layer's projected CRS.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes []*geom.LinearRing
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("table: skipping degenerate polygon ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if xy.IsRingCounterClockwise(geom.XY, flat) {
			holes = append(holes, ring)
		} else {
			outers = append(outers, ring)
		}
	}
	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	polys := make([]*geom.Polygon, len(outers))
	bounds := make([]*geom.Bounds, len(outers))
	for i, r := range outers {
		polys[i] = geom.NewPolygon(geom.XY)
		_ = polys[i].Push(r)
		bounds[i] = r.Bounds()
	}
	for _, h := range holes {
		at := h.Coord(0)
		owner := -1
		for i, r := range outers {
			if bounds[i].OverlapsPoint(geom.XY, at) && xy.IsPointInRing(geom.XY, at, r.FlatCoords()) {
				owner = i
				break
			}
		}
		if owner < 0 {
			orphan := geom.NewPolygon(geom.XY)
			_ = orphan.Push(h)
			polys = append(polys, orphan)
			continue
		}
		_ = polys[owner].Push(h)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("table: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// multiPolygonToShape flattens every ring back into shapefile parts. A nil or
// empty geometry becomes a polygon with no parts: go-shp stamps every record
// with the file's shape type, so a Null record would corrupt a polygon file.
func multiPolygonToShape(mp *geom.MultiPolygon) shp.Shape {
	if mp == nil || mp.NumPolygons() == 0 {
		return &shp.Polygon{}
	}

	var parts [][]shp.Point
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for k := 0; k < poly.NumLinearRings(); k++ {
			ring := poly.LinearRing(k)
			pts := make([]shp.Point, ring.NumCoords())
			for c := range pts {
				coord := ring.Coord(c)
				pts[c] = shp.Point{X: coord.X(), Y: coord.Y()}
			}
			parts = append(parts, pts)
		}
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

// shapefileWriter wraps go-shp's writer with field lookup by name.
type shapefileWriter struct {
	w     *shp.Writer
	index map[string]int
}

func createShapefile(path string, fields []shp.Field) (*shapefileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrapf(err, "table: create dir for %s", path)
	}
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return nil, eris.Wrapf(err, "table: create shapefile %s", path)
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return nil, eris.Wrapf(err, "table: set fields %s", path)
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[strings.TrimRight(f.String(), "\x00")] = i
	}
	return &shapefileWriter{w: w, index: index}, nil
}

// write adds one feature. Attribute names must be among the writer's fields.
func (sw *shapefileWriter) write(shape shp.Shape, attrs map[string]any) error {
	row := int(sw.w.Write(shape))
	for name, v := range attrs {
		idx, ok := sw.index[name]
		if !ok {
			return eris.Errorf("table: unknown shapefile field %s", name)
		}
		if err := sw.w.WriteAttribute(row, idx, v); err != nil {
			return eris.Wrapf(err, "table: write attribute %s", name)
		}
	}
	return nil
}

func (sw *shapefileWriter) Close() {
	sw.w.Close()
}

// dbfName truncates a column name to the 10 characters a DBF header holds.
func dbfName(name string) string {
	if len(name) > 10 {
		return name[:10]
	}
	return name
}
