package body

// Compare orders tracked detections before untracked ones, and tracked
// detections by ascending id. Untracked detections compare equal.
func Compare(a, b *Detection) int {
	switch {
	case !a.Tracked && !b.Tracked:
		return 0
	case !a.Tracked:
		return 1
	case !b.Tracked:
		return -1
	case a.TrackingID < b.TrackingID:
		return -1
	case a.TrackingID > b.TrackingID:
		return 1
	}
	return 0
}

// SortAndCount orders detections in place (tracked first, ascending id) and
// returns the number of tracked detections. Frames hold at most a handful of
// bodies, so an insertion sort is used.
func SortAndCount(detections []Detection) int {
	for i := 1; i < len(detections); i++ {
		d := detections[i]
		j := i
		for ; j > 0 && Compare(&d, &detections[j-1]) < 0; j-- {
			detections[j] = detections[j-1]
		}
		detections[j] = d
	}
	for i := range detections {
		if !detections[i].Tracked {
			return i
		}
	}
	return len(detections)
}

// IsSorted reports whether detections satisfy the matcher precondition:
// tracked entries first, tracked ids strictly ascending.
func IsSorted(detections []Detection) bool {
	seenUntracked := false
	for i := range detections {
		d := &detections[i]
		if !d.Tracked {
			seenUntracked = true
			continue
		}
		if seenUntracked {
			return false
		}
		if i > 0 && detections[i-1].TrackingID >= d.TrackingID {
			return false
		}
	}
	return true
}
