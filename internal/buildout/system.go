package buildout

import "buildout/internal/types"

// ClassifySystem labels a fragment from its sewer service area join id.
// Fragments outside the service area are on septic.
func ClassifySystem(sewerJoin int) types.System {
	if sewerJoin == types.NoJoin {
		return types.SystemSeptic
	}
	return types.SystemSewer
}

// ResolveSystems relabels every fragment of a parcel SEWER/SEPTIC when the
// parcel's fragments carry more than one system label. Labels are collected
// per parcel across all of the given sets, so pre- and post-erasure fragments
// of the same parcel resolve to the same label. It returns the number of
// fragments relabeled.
func ResolveSystems(sets ...[]types.ParcelFragment) int {
	labels := make(map[string]map[types.System]struct{})
	for _, frags := range sets {
		for _, f := range frags {
			seen, ok := labels[f.ParcelID]
			if !ok {
				seen = make(map[types.System]struct{}, 2)
				labels[f.ParcelID] = seen
			}
			seen[f.System] = struct{}{}
		}
	}

	relabeled := 0
	for _, frags := range sets {
		for i := range frags {
			if len(labels[frags[i].ParcelID]) < 2 {
				continue
			}
			if frags[i].System != types.SystemMixed {
				frags[i].System = types.SystemMixed
				relabeled++
			}
		}
	}
	return relabeled
}
