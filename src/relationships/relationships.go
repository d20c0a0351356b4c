package relationships

// Pair is an ordered (subject, object) combination of two detected objects.
type Pair struct {
	Subject int
	Object  int
}

// EnumeratePairs lists every ordered pair of distinct indices below n,
// subject-major: (0,1), (0,2), ..., (1,0), (1,2), ...
func EnumeratePairs(n int) []Pair {
	if n < 2 {
		return nil
	}
	pairs := make([]Pair, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			pairs = append(pairs, Pair{Subject: i, Object: j})
		}
	}
	return pairs
}
