// Package suggest offers "did you mean" corrections from an index's term
// dictionary, and the edit distance used by fuzzy queries.
package suggest

// Distance returns the Levenshtein distance between a and b counted in
// runes: the fewest insertions, deletions or substitutions turning one into
// the other.
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	return distanceRunes([]rune(a), []rune(b), -1)
}

// WithinDistance reports the distance between a and b when it is at most
// limit. It stops early once every alignment exceeds limit.
func WithinDistance(a, b []rune, limit int) (int, bool) {
	if d := len(a) - len(b); d > limit || -d > limit {
		return 0, false
	}
	d := distanceRunes(a, b, limit)
	return d, d <= limit
}

// distanceRunes keeps two rows of the edit matrix. With limit >= 0 it
// returns limit+1 as soon as a row's minimum passes limit.
func distanceRunes(a, b []rune, limit int) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, curr[j])
		}
		if limit >= 0 && rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
