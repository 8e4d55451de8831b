package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// indexAll returns the rune offsets of every occurrence of needle in text,
// overlapping occurrences included, in document order.
func indexAll(text, needle string) []int {
	if needle == "" {
		return nil
	}
	var matches []int
	byteOffset := 0
	runeOffset := 0
	for byteOffset <= len(text) {
		i := strings.Index(text[byteOffset:], needle)
		if i < 0 {
			break
		}
		runeOffset += utf8.RuneCountInString(text[byteOffset : byteOffset+i])
		matches = append(matches, runeOffset)

		_, size := utf8.DecodeRuneInString(text[byteOffset+i:])
		byteOffset += i + size
		runeOffset++
	}
	return matches
}

// foldCase lower-cases rune by rune so rune offsets stay aligned with the input.
func foldCase(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// closest picks the match whose document offset is nearest to target; ties
// keep the earlier match.
func closest(runes []rune, matches []int, target int) int {
	best := matches[0]
	bestDist := abs(docOffset(runes, best) - target)
	for _, m := range matches[1:] {
		if d := abs(docOffset(runes, m) - target); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}

// docOffset maps a plain-text offset into document coordinates.
func docOffset(runes []rune, offset int) int {
	return offset + newlinesBefore(runes, offset)
}

// plainOffset inverts docOffset: it returns the last plain-text offset whose
// document offset does not exceed pos.
func plainOffset(runes []rune, pos int) int {
	if pos <= 0 {
		return pos
	}
	doc := 0
	for i, r := range runes {
		step := 1
		if r == '\n' {
			step = 2
		}
		if doc+step > pos {
			return i
		}
		doc += step
	}
	return len(runes) + pos - doc
}

// newlinesBefore counts block boundary markers preceding offset.
func newlinesBefore(runes []rune, offset int) int {
	offset = clamp(offset, 0, len(runes))
	count := 0
	for _, r := range runes[:offset] {
		if r == '\n' {
			count++
		}
	}
	return count
}

// levenshtein returns the edit distance between a and b. Once every cell of a
// row exceeds bound the search stops and bound+1 is returned.
func levenshtein(a, b []rune, bound int) int {
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
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if bound >= 0 && rowMin > bound {
			return bound + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
