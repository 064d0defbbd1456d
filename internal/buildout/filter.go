package buildout

import "buildout/internal/types"

// Filters selects which overlay artifacts are dropped before calculation.
type Filters struct {
	// DropUnparceled removes slivers that missed the parcel layer, such as
	// zoning under street right-of-way.
	DropUnparceled bool
	// DropUnwatershed removes slivers that missed the nitrate watershed layer.
	DropUnwatershed bool
	// RequireMinLot removes fragments smaller than their zone's minimum lot.
	RequireMinLot bool
}

// DefaultFilters drops overlay slivers but keeps undersized fragments, which
// still carry a parcel's system label into aggregation.
func DefaultFilters() Filters {
	return Filters{DropUnparceled: true, DropUnwatershed: true}
}

// FilterStats counts dropped fragments by cause.
type FilterStats struct {
	Unparceled  int
	Unwatershed int
	BelowMinLot int
}

// Dropped is the total number of fragments removed.
func (s FilterStats) Dropped() int {
	return s.Unparceled + s.Unwatershed + s.BelowMinLot
}

// keep applies the filters in order and counts the first cause that matches.
func (f Filters) keep(fr types.ParcelFragment, stats *FilterStats) bool {
	switch {
	case f.DropUnparceled && fr.ParcelJoin == types.NoJoin:
		stats.Unparceled++
		return false
	case f.DropUnwatershed && fr.WatershedJoin == types.NoJoin:
		stats.Unwatershed++
		return false
	case f.RequireMinLot && fr.ShapeArea < fr.MinLot:
		stats.BelowMinLot++
		return false
	}
	return true
}

// Apply returns the indexes of the fragments that pass.
func (f Filters) Apply(frags []types.ParcelFragment) ([]int, FilterStats) {
	var stats FilterStats
	kept := make([]int, 0, len(frags))
	for i, fr := range frags {
		if f.keep(fr, &stats) {
			kept = append(kept, i)
		}
	}
	return kept, stats
}
