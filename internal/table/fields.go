// Package table reads and writes the attribute tables exchanged with the
// geometry step: delimited exports and ESRI shapefiles.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldMap names the attribute columns. Lookups are case-insensitive.
type FieldMap struct {
	ParcelID      string `mapstructure:"parcel_id"`
	ZoneID        string `mapstructure:"zone_id"`
	MinLot        string `mapstructure:"min_lot"`
	ResDensity    string `mapstructure:"res_density"`
	ShapeArea     string `mapstructure:"shape_area"`
	ShapeLength   string `mapstructure:"shape_length"`
	SepticDensity string `mapstructure:"septic_density"`
	System        string `mapstructure:"system"`
	SewerJoin     string `mapstructure:"sewer_join"`
	ParcelJoin    string `mapstructure:"parcel_join"`
	WatershedJoin string `mapstructure:"watershed_join"`
}

// DefaultFieldMap returns the column names produced by the county overlay
// workflow.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ParcelID:      "PAMS_PIN",
		ZoneID:        "Zone_ID",
		MinLot:        "MINLOT",
		ResDensity:    "RESDENSITY",
		ShapeArea:     "Shape_Area",
		ShapeLength:   "Shape_Length",
		SepticDensity: "SEPDENS",
		System:        "SYSTEM",
		SewerJoin:     "FID_muni_sewer_service_area",
		ParcelJoin:    "FID_muni_parcels",
		WatershedJoin: "FID_muni_NO3_densities",
	}
}

// Output column names for aggregated parcels.
const (
	ColCZ        = "CZ_BLDOUT"
	ColNO3       = "NO3_BLDOUT"
	ColCanSplit  = "CANSPLIT"
	ColCZPre     = "CZBO_PRE"
	ColCZPost    = "CZBO_POST"
	ColNO3Pre    = "NO3BO_PRE"
	ColNO3Post   = "NO3BO_POST"
	ColSplitPre  = "SPLIT_PRE"
	ColSplitPost = "SPLIT_POST"
	ColFragments = "FRAGMENTS"
	ColThinness  = "THINNESS"
)

// AttributeError reports a missing or unparseable attribute. Line is the
// 1-based data row (the header is not counted).
type AttributeError struct {
	Line   int
	Column string
	Reason string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("table: row %d: column %s %s", e.Line, e.Column, e.Reason)
}

// record is one row keyed by lower-cased column name.
type record struct {
	line   int
	values map[string]string
}

func newRecord(line int, header, cols []string) record {
	values := make(map[string]string, len(header))
	for j, h := range header {
		if j < len(cols) {
			values[strings.ToLower(h)] = strings.TrimSpace(strings.TrimRight(cols[j], "\x00"))
		}
	}
	return record{line: line, values: values}
}

// lookup finds a column by name, falling back to the truncated DBF name.
func (r record) lookup(column string) (string, bool) {
	if v, ok := r.values[strings.ToLower(column)]; ok {
		return v, true
	}
	v, ok := r.values[strings.ToLower(dbfName(column))]
	return v, ok
}

func (r record) has(column string) bool {
	_, ok := r.lookup(column)
	return ok
}

func (r record) str(column string) string {
	v, _ := r.lookup(column)
	return v
}

// required returns the column value, failing when the column is absent.
func (r record) required(column string) (string, error) {
	v, ok := r.lookup(column)
	if !ok {
		return "", &AttributeError{Line: r.line, Column: column, Reason: "is missing"}
	}
	return v, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

// float parses a required numeric column.
func (r record) float(column string) (float64, error) {
	s, err := r.required(column)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, &AttributeError{Line: r.line, Column: column, Reason: "is empty"}
	}
	v, err := parseNumber(s)
	if err != nil || math.IsNaN(v) {
		return 0, &AttributeError{Line: r.line, Column: column, Reason: fmt.Sprintf("is not a number (%q)", s)}
	}
	return v, nil
}

// optionalFloat parses a numeric column, returning def when absent or empty.
func (r record) optionalFloat(column string, def float64) (float64, error) {
	if column == "" || !r.has(column) || r.str(column) == "" {
		return def, nil
	}
	return r.float(column)
}

// joinID parses an identity-join feature id. Absent columns read as joined.
func (r record) joinID(column string) (int, error) {
	v, err := r.optionalFloat(column, 0)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
