// Package standards holds the reference diameters of the supported pipe thread standards.
//
// A Table is immutable once constructed and can be shared by any number of goroutines.
package standards

import (
	"fmt"
	"sync"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Entry is one reference diameter of a standard
type Entry struct {
	Standard            types.Standard    `json:"standard"`
	Orientation         types.Orientation `json:"orientation"`
	NominalSize         string            `json:"nominal_size"`
	ReferenceDiameterMM float64           `json:"reference_diameter_mm"`
}

// Table is an ordered, read-only set of reference entries
type Table struct {
	standards []types.Standard
	entries   map[types.Orientation][]Entry
}

// defaultEntries lists diameters in mm. Order is significant: standards BSP, NPT, UNF and
// nominal sizes ascending, because first-match classification walks them in this order.
var defaultEntries = []Entry{
	{types.BSP, types.External, "1/8", 9.7},
	{types.BSP, types.External, "1/4", 13.2},
	{types.BSP, types.External, "3/8", 16.7},
	{types.BSP, types.External, "1/2", 20.9},
	{types.BSP, types.External, "3/4", 26.4},
	{types.BSP, types.External, "1", 33.2},
	{types.BSP, types.Internal, "1/8", 8.5},
	{types.BSP, types.Internal, "1/4", 11.8},
	{types.BSP, types.Internal, "3/8", 15.3},
	{types.BSP, types.Internal, "1/2", 19.0},
	{types.BSP, types.Internal, "3/4", 24.5},
	{types.BSP, types.Internal, "1", 30.3},

	{types.NPT, types.External, "1/8", 10.2},
	{types.NPT, types.External, "1/4", 13.7},
	{types.NPT, types.External, "3/8", 17.1},
	{types.NPT, types.External, "1/2", 21.3},
	{types.NPT, types.External, "3/4", 26.7},
	{types.NPT, types.External, "1", 33.5},
	{types.NPT, types.Internal, "1/8", 8.7},
	{types.NPT, types.Internal, "1/4", 11.9},
	{types.NPT, types.Internal, "3/8", 15.5},
	{types.NPT, types.Internal, "1/2", 19.3},
	{types.NPT, types.Internal, "3/4", 24.9},
	{types.NPT, types.Internal, "1", 30.8},

	{types.UNF, types.External, "1/4", 6.35},
	{types.UNF, types.External, "3/8", 9.53},
	{types.UNF, types.External, "1/2", 12.7},
	{types.UNF, types.External, "3/4", 19.05},
	{types.UNF, types.External, "1", 25.4},
	{types.UNF, types.Internal, "1/4", 5.8},
	{types.UNF, types.Internal, "3/8", 8.8},
	{types.UNF, types.Internal, "1/2", 12.0},
	{types.UNF, types.Internal, "3/4", 18.3},
	{types.UNF, types.Internal, "1", 24.5},
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns the built-in table. It panics if the built-in data is malformed.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(defaultEntries)
		if err != nil {
			panic(fmt.Sprintf("standards: invalid built-in table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// NewTable validates entries and builds a table preserving their order.
// Every standard present must have entries for both orientations, all diameters must be
// positive and a nominal size may appear only once per standard and orientation.
func NewTable(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("table has no entries")
	}

	t := &Table{entries: make(map[types.Orientation][]Entry)}
	seen := make(map[Entry]bool)
	perPair := make(map[types.Standard]map[types.Orientation]int)

	for _, e := range entries {
		if e.Standard == "" {
			return nil, fmt.Errorf("entry %q has no standard", e.NominalSize)
		}
		if e.Orientation != types.Internal && e.Orientation != types.External {
			return nil, fmt.Errorf("%s %s: invalid orientation %q", e.Standard, e.NominalSize, e.Orientation)
		}
		if e.NominalSize == "" {
			return nil, fmt.Errorf("%s %s: empty nominal size", e.Standard, e.Orientation)
		}
		if !(e.ReferenceDiameterMM > 0) {
			return nil, fmt.Errorf("%s %s %s: diameter must be positive, got %v", e.Standard, e.Orientation, e.NominalSize, e.ReferenceDiameterMM)
		}
		key := Entry{Standard: e.Standard, Orientation: e.Orientation, NominalSize: e.NominalSize}
		if seen[key] {
			return nil, fmt.Errorf("%s %s %s: duplicate entry", e.Standard, e.Orientation, e.NominalSize)
		}
		seen[key] = true

		if _, ok := perPair[e.Standard]; !ok {
			perPair[e.Standard] = make(map[types.Orientation]int)
			t.standards = append(t.standards, e.Standard)
		}
		perPair[e.Standard][e.Orientation]++
		t.entries[e.Orientation] = append(t.entries[e.Orientation], e)
	}

	for _, std := range t.standards {
		for _, o := range []types.Orientation{types.External, types.Internal} {
			if perPair[std][o] == 0 {
				return nil, fmt.Errorf("%s has no %s sizes", std, o)
			}
		}
	}

	// Entries of one standard must stay contiguous so traversal follows standard order.
	for o, list := range t.entries {
		t.entries[o] = groupByStandard(list, t.standards)
	}

	return t, nil
}

func groupByStandard(list []Entry, order []types.Standard) []Entry {
	out := make([]Entry, 0, len(list))
	for _, std := range order {
		for _, e := range list {
			if e.Standard == std {
				out = append(out, e)
			}
		}
	}
	return out
}

// Lookup returns the entries for an orientation, standards in table order and sizes in
// their defined order. The returned slice is a copy.
func (t *Table) Lookup(o types.Orientation) []Entry {
	list := t.entries[o]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Standards returns the standards in traversal order
func (t *Table) Standards() []types.Standard {
	out := make([]types.Standard, len(t.standards))
	copy(out, t.standards)
	return out
}

// Sizes returns the nominal sizes of one standard and orientation
func (t *Table) Sizes(std types.Standard, o types.Orientation) []string {
	var sizes []string
	for _, e := range t.entries[o] {
		if e.Standard == std {
			sizes = append(sizes, e.NominalSize)
		}
	}
	return sizes
}

// Find returns a single entry
func (t *Table) Find(std types.Standard, o types.Orientation, size string) (Entry, bool) {
	for _, e := range t.entries[o] {
		if e.Standard == std && e.NominalSize == size {
			return e, true
		}
	}
	return Entry{}, false
}
