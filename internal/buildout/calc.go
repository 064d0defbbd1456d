// Package buildout estimates residential development capacity for parcel
// fragments under current zoning and nitrate-dilution rules, and aggregates
// the estimates per real parcel.
package buildout

import "math"

// SqFtPerAcre converts septic densities given in acres to square feet.
const SqFtPerAcre = 43560

// splitMargin is how many minimum lots a fragment must exceed before it is
// counted as splittable.
const splitMargin = 2

// CurrentZoning returns the number of lots a fragment yields under minimum
// lot size zoning. Preserved land and fragments no larger than twice the
// minimum lot return 0.
func CurrentZoning(minLot, shapeArea float64) int {
	if minLot == 0 {
		return 0
	}
	if shapeArea > splitMargin*minLot {
		return int(math.Floor(shapeArea / minLot))
	}
	return 0
}

// Nitrate returns the nitrate-dilution buildout. Sewered fragments are not
// nitrate constrained and return czBuildout unchanged. A septic fragment must
// clear twice both the minimum lot and the septic density lot; a zero septic
// density never splits.
func Nitrate(minLot, septicDensity, shapeArea float64, isSeptic bool, czBuildout int) int {
	if !isSeptic {
		return czBuildout
	}

	septicLot := septicDensity * SqFtPerAcre
	if septicLot <= 0 || minLot == 0 {
		return 0
	}
	if shapeArea > splitMargin*minLot && shapeArea > splitMargin*septicLot {
		return int(math.Floor(shapeArea / septicLot))
	}
	return 0
}

// Thinness is the isoperimetric ratio 4πA/L². It is 1 for a circle and
// approaches 0 for slivers. A zero perimeter yields 0.
func Thinness(area, length float64) float64 {
	if length == 0 {
		return 0
	}
	return 4 * math.Pi * area / (length * length)
}
