package retrieval

// similarityRatio measures how alike two strings are as 2*M/T, where M is
// the total length of the matched blocks and T the combined length. Matched
// blocks are found by recursively taking the longest common substring, so
// the score behaves like classic diff-based ratios: 1.0 for identical
// inputs, near 0 for unrelated ones.
func similarityRatio(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1.0
	}
	matched := matchTotal(ar, br, 0, len(ar), 0, len(br))
	return 2.0 * float64(matched) / float64(total)
}

// matchTotal sums matched block lengths over a[alo:ahi] vs b[blo:bhi].
func matchTotal(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	return k +
		matchTotal(a, b, alo, i, blo, j) +
		matchTotal(a, b, i+k, ahi, j+k, bhi)
}

// longestMatch finds the longest common substring of a[alo:ahi] and
// b[blo:bhi], returning its start positions and length.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	b2j := make(map[rune][]int)
	for j := blo; j < bhi; j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
