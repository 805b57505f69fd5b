package conversation

// RepairAnchors recomputes attachment anchors after a composer text edit.
//
// The edit is modeled as a single replaced region, located by the common
// prefix and common suffix of the old and new text. Anchors at or before the
// common prefix are unchanged; anchors at or after the end of the old
// changed region shift by the length delta; anchors inside the replaced
// region snap to its start. Every anchor is finally clamped to the new text
// length.
func RepairAnchors(oldText, newText string, anchors []int) []int {
	prefix := commonPrefixLen(oldText, newText)
	suffix := commonSuffixLen(oldText, newText)

	// The prefix and suffix may overlap when the texts share more than
	// their combined difference; keep the regions disjoint.
	if prefix+suffix > len(oldText) {
		suffix = len(oldText) - prefix
	}
	if prefix+suffix > len(newText) {
		suffix = len(newText) - prefix
	}

	oldChangedEnd := len(oldText) - suffix
	delta := len(newText) - len(oldText)

	repaired := make([]int, len(anchors))
	for i, anchor := range anchors {
		switch {
		case anchor <= prefix:
			repaired[i] = anchor
		case anchor >= oldChangedEnd:
			repaired[i] = anchor + delta
		default:
			repaired[i] = prefix
		}
		if repaired[i] > len(newText) {
			repaired[i] = len(newText)
		}
		if repaired[i] < 0 {
			repaired[i] = 0
		}
	}
	return repaired
}

func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
