package model

// Tweet IDs are numeric strings ordered by value. They routinely exceed
// int64-safe parsing habits elsewhere in the stack, so comparisons are done
// on the strings themselves: a longer ID is larger, equal lengths compare
// lexicographically.

// CompareTweetIDs returns -1, 0 or 1 ordering a relative to b.
// An empty ID sorts before any non-empty ID.
func CompareTweetIDs(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	return 1
}

// MaxTweetID returns the larger of two tweet IDs.
func MaxTweetID(a, b string) string {
	if CompareTweetIDs(a, b) >= 0 {
		return a
	}
	return b
}
