package zoning

import "strings"

// InferJurisdiction maps a dataset name onto a jurisdiction by the substrings
// older zoning exports were named with. It exists for callers that only have
// a layer name; prefer passing a Jurisdiction explicitly.
//
// Matching is case-sensitive and ordered: CARNEY/CP, then OLDMAN. Anything
// else, HOPEWELL included, is Passthrough.
func InferJurisdiction(datasetName string) Jurisdiction {
	switch {
	case strings.Contains(datasetName, "CARNEY"), strings.Contains(datasetName, "CP"):
		return CarneysPoint
	case strings.Contains(datasetName, "OLDMAN"):
		return Oldmans
	default:
		return Passthrough
	}
}
