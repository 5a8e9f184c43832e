// Package dentition enumerates the permanent tooth positions (FDI notation)
// and decides whether a set of positions forms one contiguous run on an arch.
package dentition

import "fmt"

// PositionID is a two-character FDI tooth code: quadrant (1-4) followed by
// the position counted from the midline (1-8).
type PositionID string

// Arch identifies the upper or lower dental arch.
type Arch string

const (
	ArchUpper Arch = "upper"
	ArchLower Arch = "lower"
)

// PositionType classifies a tooth by its position from the midline.
type PositionType string

const (
	IncisorCentral PositionType = "incisor_central"
	IncisorLateral PositionType = "incisor_lateral"
	Canine         PositionType = "canine"
	Premolar       PositionType = "premolar"
	Molar          PositionType = "molar"
)

// UpperSequence is the anatomical left-to-right ordering of the upper arch as
// drawn on the chart: quadrant 1 from 8 down to 1, then quadrant 2 from 1 to 8.
var UpperSequence = [16]PositionID{
	"18", "17", "16", "15", "14", "13", "12", "11",
	"21", "22", "23", "24", "25", "26", "27", "28",
}

// LowerSequence mirrors UpperSequence for the lower arch: quadrant 4
// descending, then quadrant 3 ascending.
var LowerSequence = [16]PositionID{
	"48", "47", "46", "45", "44", "43", "42", "41",
	"31", "32", "33", "34", "35", "36", "37", "38",
}

type slot struct {
	arch  Arch
	index int
}

var registry = buildRegistry()

func buildRegistry() map[PositionID]slot {
	m := make(map[PositionID]slot, 32)
	for i, id := range UpperSequence {
		m[id] = slot{arch: ArchUpper, index: i}
	}
	for i, id := range LowerSequence {
		m[id] = slot{arch: ArchLower, index: i}
	}
	return m
}

// Valid reports whether id is one of the 32 permanent positions.
func Valid(id PositionID) bool {
	_, ok := registry[id]
	return ok
}

// All returns the 32 positions, upper arch first, each arch in sequence order.
func All() []PositionID {
	out := make([]PositionID, 0, 32)
	out = append(out, UpperSequence[:]...)
	out = append(out, LowerSequence[:]...)
	return out
}

// SequenceFor returns a copy of the canonical ordering of the given arch.
func SequenceFor(a Arch) []PositionID {
	switch a {
	case ArchUpper:
		return append([]PositionID(nil), UpperSequence[:]...)
	case ArchLower:
		return append([]PositionID(nil), LowerSequence[:]...)
	}
	return nil
}

// ArchOf returns the arch the position belongs to. It panics on an id that is
// not a legal position; callers only ever pass positions picked from the chart.
func ArchOf(id PositionID) Arch {
	return mustLookup(id).arch
}

// IndexOf returns the position's index within its arch sequence.
func IndexOf(id PositionID) int {
	return mustLookup(id).index
}

// TypeOf classifies the position by its last digit. Panics on illegal ids.
func TypeOf(id PositionID) PositionType {
	mustLookup(id)
	switch id[1] {
	case '1':
		return IncisorCentral
	case '2':
		return IncisorLateral
	case '3':
		return Canine
	case '4', '5':
		return Premolar
	default:
		return Molar
	}
}

func mustLookup(id PositionID) slot {
	s, ok := registry[id]
	if !ok {
		panic(fmt.Sprintf("dentition: illegal position id %q", string(id)))
	}
	return s
}
