package standards

import (
	"testing"

	"github.com/menta2k/thread-gauge/pkg/types"
)

func TestDefaultTableOrder(t *testing.T) {
	table := Default()

	stds := table.Standards()
	want := []types.Standard{types.BSP, types.NPT, types.UNF}
	if len(stds) != len(want) {
		t.Fatalf("Expected %d standards, got %d", len(want), len(stds))
	}
	for i := range want {
		if stds[i] != want[i] {
			t.Errorf("Standard %d: expected %s, got %s", i, want[i], stds[i])
		}
	}

	entries := table.Lookup(types.External)
	if len(entries) != 17 {
		t.Fatalf("Expected 17 external entries, got %d", len(entries))
	}
	if entries[0].Standard != types.BSP || entries[0].NominalSize != "1/8" {
		t.Errorf("Expected first entry BSP 1/8, got %s %s", entries[0].Standard, entries[0].NominalSize)
	}
	last := entries[len(entries)-1]
	if last.Standard != types.UNF || last.NominalSize != "1" {
		t.Errorf("Expected last entry UNF 1, got %s %s", last.Standard, last.NominalSize)
	}
}

func TestDefaultTableInvariants(t *testing.T) {
	table := Default()
	for _, std := range table.Standards() {
		for _, o := range []types.Orientation{types.Internal, types.External} {
			if len(table.Sizes(std, o)) == 0 {
				t.Errorf("%s %s has no sizes", std, o)
			}
		}
	}
	for _, o := range []types.Orientation{types.Internal, types.External} {
		for _, e := range table.Lookup(o) {
			if e.ReferenceDiameterMM <= 0 {
				t.Errorf("%s %s %s has non-positive diameter", e.Standard, o, e.NominalSize)
			}
		}
	}
}

func TestFind(t *testing.T) {
	e, ok := Default().Find(types.BSP, types.External, "1/2")
	if !ok {
		t.Fatal("BSP 1/2 external not found")
	}
	if e.ReferenceDiameterMM != 20.9 {
		t.Errorf("Expected 20.9, got %v", e.ReferenceDiameterMM)
	}

	if _, ok := Default().Find(types.UNF, types.External, "1/8"); ok {
		t.Error("UNF has no 1/8 size")
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	table := Default()
	entries := table.Lookup(types.Internal)
	entries[0].ReferenceDiameterMM = -1

	again := table.Lookup(types.Internal)
	if again[0].ReferenceDiameterMM != 8.5 {
		t.Errorf("Lookup must not expose internal storage, got %v", again[0].ReferenceDiameterMM)
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"non-positive diameter", []Entry{
			{types.BSP, types.External, "1/2", 0},
			{types.BSP, types.Internal, "1/2", 19.0},
		}},
		{"missing orientation", []Entry{
			{types.BSP, types.External, "1/2", 20.9},
		}},
		{"duplicate", []Entry{
			{types.BSP, types.External, "1/2", 20.9},
			{types.BSP, types.External, "1/2", 21.0},
			{types.BSP, types.Internal, "1/2", 19.0},
		}},
		{"bad orientation", []Entry{
			{types.BSP, "sideways", "1/2", 20.9},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.entries); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestNewTableGroupsStandards(t *testing.T) {
	table, err := NewTable([]Entry{
		{types.NPT, types.External, "1/2", 21.3},
		{types.BSP, types.External, "1/2", 20.9},
		{types.NPT, types.External, "1", 33.5},
		{types.NPT, types.Internal, "1/2", 19.3},
		{types.BSP, types.Internal, "1/2", 19.0},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	got := table.Lookup(types.External)
	want := []string{"NPT 1/2", "NPT 1", "BSP 1/2"}
	for i, e := range got {
		if s := string(e.Standard) + " " + e.NominalSize; s != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], s)
		}
	}
}
