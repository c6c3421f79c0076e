package analysis

// matcher computes the Ratcliff/Obershelp similarity of two rune sequences:
// the longest common block is matched first, then both sides are recursed on.
// Elements of b occurring more than 1% of the time in a b of 200+ runes are
// treated as popular and never start a match.
type matcher struct {
	a, b []rune
	b2j  map[rune][]int
}

const autojunkMinLength = 200

func newMatcher(a, b []rune) *matcher {
	m := &matcher{a: a, b: b, b2j: make(map[rune][]int)}
	for j, r := range b {
		m.b2j[r] = append(m.b2j[r], j)
	}
	if n := len(b); n >= autojunkMinLength {
		limit := n/100 + 1
		for r, idx := range m.b2j {
			if len(idx) > limit {
				delete(m.b2j, r)
			}
		}
	}
	return m
}

// longestMatch returns the longest block a[i:i+k] == b[j:j+k] inside
// a[alo:ahi] and b[blo:bhi], preferring the earliest i, then the earliest j.
func (m *matcher) longestMatch(alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestSize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestSize {
				besti, bestj, bestSize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	// popular runes were skipped above; let the match grow over them
	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestSize = besti-1, bestj-1, bestSize+1
	}
	for besti+bestSize < ahi && bestj+bestSize < bhi && m.a[besti+bestSize] == m.b[bestj+bestSize] {
		bestSize++
	}
	return besti, bestj, bestSize
}

// matches counts the runes covered by all matching blocks.
func (m *matcher) matches() int {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	total := 0
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return total
}

// ratio is 2*M/T, with two empty sequences counting as identical.
func (m *matcher) ratio() float64 {
	t := len(m.a) + len(m.b)
	if t == 0 {
		return 1
	}
	return 2 * float64(m.matches()) / float64(t)
}
