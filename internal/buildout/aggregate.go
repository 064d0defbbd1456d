package buildout

import (
	"sort"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"buildout/internal/types"
)

type group struct {
	cz, no3   int
	fragments int
	shape     *geom.MultiPolygon
}

func groupFragments(frags []types.ParcelFragment) map[types.ParcelKey]*group {
	groups := make(map[types.ParcelKey]*group)
	for _, f := range frags {
		key := f.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.cz += f.CZBuildout
		g.no3 += f.NO3Buildout
		g.fragments++
		g.shape = gatherShape(g.shape, f.Shape)
	}
	return groups
}

// gatherShape appends the polygons of src to dst. Polygons are not unioned.
func gatherShape(dst, src *geom.MultiPolygon) *geom.MultiPolygon {
	if src == nil || src.NumPolygons() == 0 {
		return dst
	}
	if dst == nil {
		dst = geom.NewMultiPolygon(src.Layout()).SetSRID(src.SRID())
	}
	for i := 0; i < src.NumPolygons(); i++ {
		if err := dst.Push(src.Polygon(i)); err != nil {
			zap.L().Debug("buildout: skipping fragment polygon", zap.Int("part", i), zap.Error(err))
		}
	}
	return dst
}

func sortParcels(parcels []types.AggregatedParcel) {
	sort.Slice(parcels, func(i, j int) bool {
		return parcels[i].ParcelKey.Less(parcels[j].ParcelKey)
	})
}

// Aggregate sums fragment buildout per (parcel, zone, system). The result is
// sorted by key and does not depend on fragment order. Buildout fields are
// raw sums; Normalize and DetermineSplits finish the records.
func Aggregate(frags []types.ParcelFragment) []types.AggregatedParcel {
	groups := groupFragments(frags)
	parcels := make([]types.AggregatedParcel, 0, len(groups))
	for key, g := range groups {
		parcels = append(parcels, types.AggregatedParcel{
			ParcelKey: key,
			Pre:       types.Buildout{CZ: g.cz, NO3: g.no3},
			Fragments: g.fragments,
			Shape:     g.shape,
		})
	}
	sortParcels(parcels)
	return parcels
}

// AggregatePrePost sums the pre- and post-erasure fragment sets into one
// record per key. Both sets must already share resolved system labels. A key
// present on one side only gets zero sums on the other.
func AggregatePrePost(pre, post []types.ParcelFragment) []types.AggregatedParcel {
	preGroups := groupFragments(pre)
	postGroups := groupFragments(post)

	parcels := make([]types.AggregatedParcel, 0, len(preGroups))
	for key, g := range preGroups {
		p := types.AggregatedParcel{
			ParcelKey: key,
			Pre:       types.Buildout{CZ: g.cz, NO3: g.no3},
			Post:      &types.Buildout{},
			Fragments: g.fragments,
			Shape:     g.shape,
		}
		if pg, ok := postGroups[key]; ok {
			p.Post.CZ = pg.cz
			p.Post.NO3 = pg.no3
		}
		parcels = append(parcels, p)
	}
	for key, pg := range postGroups {
		if _, ok := preGroups[key]; ok {
			continue
		}
		parcels = append(parcels, types.AggregatedParcel{
			ParcelKey: key,
			Post:      &types.Buildout{CZ: pg.cz, NO3: pg.no3},
			Fragments: pg.fragments,
			Shape:     pg.shape,
		})
	}
	sortParcels(parcels)
	return parcels
}

// BoundViolations returns the keys whose post-erasure sums exceed the
// pre-erasure sums. Erasing constrained area can only remove capacity, so any
// hit points at inconsistent input tables.
func BoundViolations(parcels []types.AggregatedParcel) []types.ParcelKey {
	var out []types.ParcelKey
	for _, p := range parcels {
		if p.Post == nil {
			continue
		}
		if p.Post.CZ > p.Pre.CZ || p.Post.NO3 > p.Pre.NO3 {
			out = append(out, p.ParcelKey)
		}
	}
	return out
}

// PromoteFloor returns 1 for a zero buildout sum. Every parcel is assumed to
// hold one existing dwelling unit.
func PromoteFloor(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

// Normalize promotes zero sums to 1 on every buildout field. It must run on
// aggregated records only, never on fragments.
func Normalize(parcels []types.AggregatedParcel) {
	for i := range parcels {
		parcels[i].Pre.CZ = PromoteFloor(parcels[i].Pre.CZ)
		parcels[i].Pre.NO3 = PromoteFloor(parcels[i].Pre.NO3)
		if post := parcels[i].Post; post != nil {
			post.CZ = PromoteFloor(post.CZ)
			post.NO3 = PromoteFloor(post.NO3)
		}
	}
}

// CanSplit reports whether either normalized buildout shows capacity beyond
// the one existing unit. Raw sums are either 0 or at least 2, so on promoted
// values this matches testing the raw sum against 1.
func CanSplit(no3, cz int) bool {
	return no3 > 1 || cz > 1
}

// DetermineSplits sets CanSplit on each variant from its normalized values.
func DetermineSplits(parcels []types.AggregatedParcel) {
	for i := range parcels {
		parcels[i].Pre.CanSplit = CanSplit(parcels[i].Pre.NO3, parcels[i].Pre.CZ)
		if post := parcels[i].Post; post != nil {
			post.CanSplit = CanSplit(post.NO3, post.CZ)
		}
	}
}
