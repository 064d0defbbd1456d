package zoning

import (
	"math"

	"github.com/rotisserie/eris"

	"buildout/internal/types"
)

// Density returns dwelling units per square foot for a minimum lot size.
// Preserved land (minLot == 0) reads 0 rather than an inversion fault.
func Density(minLot float64) float64 {
	if minLot == 0 {
		return 0
	}
	return 1 / minLot
}

// Classifier applies one profile to zones and fragments. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	profile Profile
}

// NewClassifier returns a classifier for p.
func NewClassifier(p Profile) *Classifier {
	return &Classifier{profile: p}
}

// Jurisdiction returns the profile name in use.
func (c *Classifier) Jurisdiction() Jurisdiction { return c.profile.name }

// HasTable reports whether zone codes are looked up in a table.
func (c *Classifier) HasTable() bool { return c.profile.HasTable() }

// Lookup returns the minimum lot and density for code. ok is false when the
// profile has no table or does not list the code; callers leave the zone as is.
func (c *Classifier) Lookup(code string) (minLot, density float64, ok bool) {
	minLot, ok = c.profile.MinLot(code)
	if !ok {
		return 0, 0, false
	}
	return minLot, Density(minLot), true
}

// ClassifyZone returns z with MinLot and ResDensity assigned. Without a code
// table the zone keeps its MinLot and only ResDensity is derived, so a zone
// without MINLOT is an error.
func (c *Classifier) ClassifyZone(z types.ZoneRecord) (types.ZoneRecord, error) {
	if c.profile.HasTable() {
		if minLot, density, ok := c.Lookup(z.ZoneID); ok {
			z.MinLot = minLot
			z.ResDensity = density
			z.MinLotMissing = false
		}
		return z, nil
	}

	if z.MinLotMissing {
		return z, eris.Errorf("zoning: zone %q is missing MINLOT", z.ZoneID)
	}
	if z.MinLot < 0 || math.IsNaN(z.MinLot) {
		return z, eris.Errorf("zoning: zone %q has invalid MINLOT %v", z.ZoneID, z.MinLot)
	}
	z.ResDensity = Density(z.MinLot)
	return z, nil
}

// ClassifyZones classifies every zone into a new slice.
func (c *Classifier) ClassifyZones(zones []types.ZoneRecord) ([]types.ZoneRecord, error) {
	out := make([]types.ZoneRecord, len(zones))
	for i, z := range zones {
		classified, err := c.ClassifyZone(z)
		if err != nil {
			return nil, err
		}
		out[i] = classified
	}
	return out, nil
}

// ApplyToFragment sets f.MinLot from the code table. It reports whether the
// fragment's zone code was found.
func (c *Classifier) ApplyToFragment(f *types.ParcelFragment) bool {
	minLot, _, ok := c.Lookup(f.ZoneID)
	if ok {
		f.MinLot = minLot
	}
	return ok
}

// PreservedZones returns the zones with a known minimum lot of zero. The
// geometry step treats them as a development constraint, so zones whose
// MINLOT was never set are left out.
func PreservedZones(zones []types.ZoneRecord) []types.ZoneRecord {
	var out []types.ZoneRecord
	for _, z := range zones {
		if z.Preserved() {
			out = append(out, z)
		}
	}
	return out
}
