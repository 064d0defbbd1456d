package types

import "time"

// Run summarizes one stored evaluation.
type Run struct {
	ID           string
	Municipality string
	Jurisdiction string
	Source       string
	PrePost      bool
	Parcels      int
	Splittable   int
	CreatedAt    time.Time
}
