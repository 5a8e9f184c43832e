package dentition

import "sort"

// IsContiguous reports whether ids form a single unbroken run on one arch.
// Order and duplicates in the input do not matter. Sets of fewer than two
// positions are trivially contiguous. Mixed arches or unknown ids yield false.
//
// Adjacency follows the arch sequence, so a run may cross the midline
// ("11" and "21" are neighbours even though the codes are not consecutive).
func IsContiguous(ids []PositionID) bool {
	uniq := make(map[PositionID]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	if len(uniq) < 2 {
		return true
	}

	var arch Arch
	indices := make([]int, 0, len(uniq))
	for id := range uniq {
		s, ok := registry[id]
		if !ok {
			return false
		}
		if arch == "" {
			arch = s.arch
		} else if s.arch != arch {
			return false
		}
		indices = append(indices, s.index)
	}

	sort.Ints(indices)
	for i := 1; i < len(indices); i++ {
		if indices[i]-indices[i-1] != 1 {
			return false
		}
	}
	return true
}

// SortPositions orders ids by their natural string order, which for two-digit
// codes is also numeric order. The input slice is sorted in place.
func SortPositions(ids []PositionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
