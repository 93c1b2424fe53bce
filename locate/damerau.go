package locate

// normalizedDamerauLevenshtein scores the similarity of a and b in [0,1]:
// 1 - (edit distance / max(len(a), len(b))) in runes, where edit distance
// allows insertion, deletion, substitution, and adjacent-transposition at
// cost 1 (the Damerau extension of Levenshtein distance).
//
// Hand-rolled rather than imported: github.com/xrash/smetrics (used
// elsewhere in this module for a diagnostic hint, see NoMatchHint) only
// offers plain Levenshtein, Jaro-Winkler, and Soundex — none of them
// transposition-aware — so there is no pack dependency that implements
// this specific distance.
func normalizedDamerauLevenshtein(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	dist := damerauLevenshteinDistance(ra, rb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// damerauLevenshteinDistance computes the optimal string alignment distance
// (restricted Damerau-Levenshtein: each substring may be transposed at most
// once) using the classic O(len(a)*len(b)) dynamic-programming table.
func damerauLevenshteinDistance(a, b []rune) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			best := min3(del, ins, sub)

			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				trans := d[i-2][j-2] + cost
				if trans < best {
					best = trans
				}
			}
			d[i][j] = best
		}
	}
	return d[la][lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
