package buildout

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"buildout/internal/types"
)

// ErrInvalidFragment is wrapped by every FragmentError.
var ErrInvalidFragment = eris.New("invalid fragment")

// FragmentError identifies a fragment whose attributes would corrupt the
// aggregate sums.
type FragmentError struct {
	Index    int
	ParcelID string
	Field    string
	Reason   string
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("buildout: fragment %d (parcel %q): %s %s", e.Index, e.ParcelID, e.Field, e.Reason)
}

func (e *FragmentError) Unwrap() error {
	return ErrInvalidFragment
}

func invalidMeasure(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

func validateMeasures(i int, f types.ParcelFragment) error {
	fail := func(field string, v float64) error {
		return &FragmentError{Index: i, ParcelID: f.ParcelID, Field: field, Reason: fmt.Sprintf("is invalid (%v)", v)}
	}
	switch {
	case invalidMeasure(f.ShapeArea):
		return fail("shape_area", f.ShapeArea)
	case invalidMeasure(f.ShapeLength):
		return fail("shape_length", f.ShapeLength)
	case invalidMeasure(f.MinLot):
		return fail("min_lot_size", f.MinLot)
	case invalidMeasure(f.SepticDensity):
		return fail("septic_density", f.SepticDensity)
	}
	return nil
}

func validateIdentity(i int, f types.ParcelFragment) error {
	if strings.TrimSpace(f.ParcelID) == "" {
		return &FragmentError{Index: i, Field: "parcel_id", Reason: "is missing"}
	}
	if strings.TrimSpace(f.ZoneID) == "" {
		return &FragmentError{Index: i, ParcelID: f.ParcelID, Field: "zone_id", Reason: "is missing"}
	}
	if f.System != "" && !f.System.Valid() {
		return &FragmentError{Index: i, ParcelID: f.ParcelID, Field: "system", Reason: fmt.Sprintf("is unknown (%q)", f.System)}
	}
	return nil
}

// maxLots caps a single fragment's lot count. Larger quotients only come from
// corrupt measures and would overflow the summed counts.
const maxLots = math.MaxInt32

// validateLots rejects fragments whose area would yield more than maxLots
// lots under either regime. f.System must already be resolved.
func validateLots(i int, f types.ParcelFragment) error {
	fail := func(field string, lots float64) error {
		return &FragmentError{Index: i, ParcelID: f.ParcelID, Field: field,
			Reason: fmt.Sprintf("yields %.0f lots, over the %d limit", lots, maxLots)}
	}
	if f.MinLot > 0 {
		if lots := f.ShapeArea / f.MinLot; lots > maxLots {
			return fail("min_lot_size", lots)
		}
	}
	if f.System == types.SystemSeptic {
		if septicLot := f.SepticDensity * SqFtPerAcre; septicLot > 0 {
			if lots := f.ShapeArea / septicLot; lots > maxLots {
				return fail("septic_density", lots)
			}
		}
	}
	return nil
}

// Validate checks the attributes the engine cannot safely default: measures
// must be finite and non-negative, and parcel and zone ids present. i is
// reported back in the error.
func Validate(i int, f types.ParcelFragment) error {
	if err := validateMeasures(i, f); err != nil {
		return err
	}
	return validateIdentity(i, f)
}
