package types

import "github.com/twpayne/go-geom"

// NoJoin is the identity-join sentinel written by the overlay step when a
// fragment does not intersect the joined layer.
const NoJoin = -1

// System is the wastewater system serving a fragment or parcel.
type System string

const (
	SystemSeptic System = "SEPTIC"
	SystemSewer  System = "SEWER"
	SystemMixed  System = "SEWER/SEPTIC"
)

// Valid reports whether s is one of the known system labels.
func (s System) Valid() bool {
	switch s {
	case SystemSeptic, SystemSewer, SystemMixed:
		return true
	}
	return false
}

// ZoneRecord is a zoning polygon's attribute row. MinLot is in square feet;
// zero marks preserved land, whose ResDensity reads 0.
type ZoneRecord struct {
	ZoneID     string
	MinLot     float64
	ResDensity float64

	// MinLotMissing is set when the layer carried no MINLOT for the zone and
	// no code table has assigned one. MinLot then reads 0 but is not preserved.
	MinLotMissing bool

	// Shape is carried through untouched so a classified layer can be written back.
	Shape *geom.MultiPolygon
}

// Preserved reports whether the zone is open space: a known minimum lot of 0.
func (z ZoneRecord) Preserved() bool {
	return !z.MinLotMissing && z.MinLot == 0
}

// ParcelFragment is one sliver of a real parcel produced by the overlay of
// zoning, parcels, sewer service area and nitrate watersheds.
type ParcelFragment struct {
	ParcelID      string
	ZoneID        string
	MinLot        float64
	ShapeArea     float64
	ShapeLength   float64
	SepticDensity float64 // units per acre, meaningful only for SEPTIC

	// Identity-join feature ids; NoJoin when the fragment missed the layer.
	SewerJoin     int
	ParcelJoin    int
	WatershedJoin int

	System      System
	CZBuildout  int
	NO3Buildout int

	Shape *geom.MultiPolygon
}

// ParcelKey is the aggregation key.
type ParcelKey struct {
	ParcelID string
	ZoneID   string
	System   System
}

// Less orders keys by parcel, then zone, then system.
func (k ParcelKey) Less(o ParcelKey) bool {
	if k.ParcelID != o.ParcelID {
		return k.ParcelID < o.ParcelID
	}
	if k.ZoneID != o.ZoneID {
		return k.ZoneID < o.ZoneID
	}
	return k.System < o.System
}

// Key returns the fragment's aggregation key.
func (f ParcelFragment) Key() ParcelKey {
	return ParcelKey{ParcelID: f.ParcelID, ZoneID: f.ZoneID, System: f.System}
}

// Buildout holds the summed estimates under both regimes for one variant.
type Buildout struct {
	CZ       int
	NO3      int
	CanSplit bool
}

// AggregatedParcel is the terminal record: one per (parcel, zone, system).
// Post is nil for the single-pass variant.
type AggregatedParcel struct {
	ParcelKey
	Pre       Buildout
	Post      *Buildout
	Fragments int

	// Shape gathers the member fragment polygons without dissolving them.
	Shape *geom.MultiPolygon
}

// Splittable reports the most constrained split decision available.
func (p AggregatedParcel) Splittable() bool {
	if p.Post != nil {
		return p.Post.CanSplit
	}
	return p.Pre.CanSplit
}
