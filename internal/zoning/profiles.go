// Package zoning assigns minimum lot sizes and residential densities to zones
// from per-jurisdiction zone-code tables.
package zoning

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Jurisdiction names a zone-code naming convention.
type Jurisdiction string

const (
	CarneysPoint Jurisdiction = "carneys-point"
	Oldmans      Jurisdiction = "oldmans"

	// Passthrough has no code table: zones keep their MINLOT and only the
	// density is derived from it.
	Passthrough Jurisdiction = "passthrough"
)

// Minimum lot sizes in square feet. Zero is preserved land.
var builtinTables = map[Jurisdiction]map[string]float64{
	CarneysPoint: {
		"RR-2": 30000, "RR-1": 18750, "AG": 30000, "LR": 125000, "MHR": 5400,
		"HR": 3500, "LC": 3500, "GC": 12500, "GCR": 12500, "LI-R": 120000,
		"GI-R": 250000, "IC": 40000, "LI": 120000, "OS": 0,
	},
	Oldmans: {
		"AR": 87120, "R": 43560, "C": 43560, "VR": 10000, "VC": 10000,
		"I": 130680, "CI": 130680, "IPRA": 130680, "P": 0,
	},
}

// Profile is an immutable zone-code table for one jurisdiction.
type Profile struct {
	name  Jurisdiction
	codes map[string]float64
}

// NewProfile copies codes into a new profile. Negative lot sizes are rejected.
func NewProfile(name Jurisdiction, codes map[string]float64) (Profile, error) {
	if strings.TrimSpace(string(name)) == "" {
		return Profile{}, eris.New("zoning: profile name is empty")
	}
	copied := make(map[string]float64, len(codes))
	for code, size := range codes {
		if size < 0 {
			return Profile{}, eris.Errorf("zoning: %s code %q has negative minimum lot %v", name, code, size)
		}
		copied[code] = size
	}
	return Profile{name: name, codes: copied}, nil
}

// Name returns the jurisdiction the table belongs to.
func (p Profile) Name() Jurisdiction { return p.name }

// HasTable reports whether the profile classifies by code. A profile without
// a table derives density from existing MINLOT values instead.
func (p Profile) HasTable() bool { return len(p.codes) > 0 }

// MinLot looks up a zone code. Matching is exact.
func (p Profile) MinLot(code string) (float64, bool) {
	size, ok := p.codes[code]
	return size, ok
}

// Codes returns the table's zone codes in sorted order.
func (p Profile) Codes() []string {
	out := make([]string, 0, len(p.codes))
	for code := range p.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Registry holds the profiles a run may select from.
type Registry struct {
	profiles map[Jurisdiction]Profile
}

// DefaultRegistry returns a registry holding the built-in tables.
func DefaultRegistry() *Registry {
	r := &Registry{profiles: make(map[Jurisdiction]Profile, len(builtinTables))}
	for name, codes := range builtinTables {
		p, err := NewProfile(name, codes)
		if err != nil {
			panic(err) // built-in tables are static
		}
		r.profiles[name] = p
	}
	return r
}

// Add registers p, replacing any profile with the same name.
func (r *Registry) Add(p Profile) {
	r.profiles[p.name] = p
}

// Profile returns the named profile. Unknown names, and Passthrough, resolve
// to a table-less profile and report false.
func (r *Registry) Profile(name Jurisdiction) (Profile, bool) {
	if p, ok := r.profiles[name]; ok {
		return p, true
	}
	return Profile{name: Passthrough}, false
}

// Names lists registered jurisdictions in sorted order.
func (r *Registry) Names() []Jurisdiction {
	out := make([]Jurisdiction, 0, len(r.profiles))
	for name := range r.profiles {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type tablesFile struct {
	Jurisdictions []struct {
		Name  string             `yaml:"name"`
		Codes map[string]float64 `yaml:"codes"`
	} `yaml:"jurisdictions"`
}

// LoadFile reads custom code tables from a YAML file:
//
//	jurisdictions:
//	  - name: pilesgrove
//	    codes:
//	      R-1: 43560
//	      OS: 0
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "zoning: read tables %s", path)
	}
	var tf tablesFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return eris.Wrapf(err, "zoning: parse tables %s", path)
	}
	for _, j := range tf.Jurisdictions {
		p, err := NewProfile(Jurisdiction(strings.TrimSpace(j.Name)), j.Codes)
		if err != nil {
			return eris.Wrapf(err, "zoning: tables %s", path)
		}
		r.Add(p)
	}
	return nil
}
