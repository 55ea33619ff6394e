package cvs

import "strings"

// Ratio computes a similarity score in [0, 1] for two strings: twice the
// total length of all matching blocks over the combined length. Equivalent to
// the classic difflib sequence ratio, without the junk heuristic.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := matchingTotal([]rune(a), []rune(b))
	return 2 * float64(matched) / float64(len([]rune(a))+len([]rune(b)))
}

// matchingTotal sums the lengths of the longest matching blocks, recursing
// left and right of each block.
func matchingTotal(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingTotal(a[:ai], b[:bi])
	total += matchingTotal(a[ai+size:], b[bi+size:])
	return total
}

func longestMatch(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	// lengths[j] holds the match length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestSize
}

// NameRatio compares two person names, tolerant of case, extra whitespace,
// and first/last ordering.
func NameRatio(a, b string) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	best := Ratio(na, nb)
	if flipped := flipName(nb); flipped != nb {
		if r := Ratio(na, flipped); r > best {
			best = r
		}
	}
	if flipped := flipName(na); flipped != na {
		if r := Ratio(flipped, nb); r > best {
			best = r
		}
	}
	return best
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func flipName(s string) string {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return s
	}
	return parts[1] + " " + parts[0]
}
