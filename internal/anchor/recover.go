package anchor

const (
	// minAnchorText is the shortest snapshot worth searching for.
	minAnchorText = 3
	// unmovedTolerance absorbs small structural renumbering around an exact match.
	unmovedTolerance = 3
	// fuzzyPadding widens the fuzzy search window on both sides of the anchor.
	fuzzyPadding = 50
	// fuzzyDivisor caps accepted edit distance at floor(len/5), i.e. 20%.
	fuzzyDivisor = 5
)

// Recover re-binds a to text, the plain-text rendering of the current document.
// It has no side effects and always returns a result; missing snapshots and
// lost text are reported through Status rather than errors.
func Recover(a Anchor, text string) RecoveryResult {
	needle := []rune(a.AnchorText)
	if len(needle) < minAnchorText {
		return RecoveryResult{
			Status:       StatusFallback,
			NewStart:     a.StartOffset,
			NewEnd:       a.EndOffset,
			MatchQuality: QualityNone,
		}
	}

	runes := []rune(text)

	if matches := indexAll(text, a.AnchorText); len(matches) > 0 {
		pos := closest(runes, matches, a.StartOffset)
		if abs(docOffset(runes, pos)-a.StartOffset) <= unmovedTolerance {
			return RecoveryResult{
				Status:       StatusRelocated,
				NewStart:     a.StartOffset,
				NewEnd:       a.EndOffset,
				MatchQuality: QualityExact,
			}
		}
		return located(runes, pos, len(needle), StatusRelocated, QualityExact)
	}

	if matches := indexAll(foldCase(text), foldCase(a.AnchorText)); len(matches) > 0 {
		pos := closest(runes, matches, a.StartOffset)
		return located(runes, pos, len(needle), StatusRelocated, QualityCaseInsensitive)
	}

	if pos, ok := fuzzyFind(runes, needle, plainOffset(runes, a.StartOffset)); ok {
		return located(runes, pos, len(needle), StatusUncertain, QualityFuzzy)
	}

	start := clamp(a.StartOffset, 0, len(runes))
	end := clamp(a.EndOffset, start, len(runes))
	return RecoveryResult{
		Status:       StatusOrphaned,
		NewStart:     start,
		NewEnd:       end,
		MatchQuality: QualityNone,
	}
}

// RecoverAll recovers every anchor against the same text. Anchors are
// independent; when two share an id the later one wins.
func RecoverAll(anchors []Anchor, text string) map[string]RecoveryResult {
	results := make(map[string]RecoveryResult, len(anchors))
	for _, a := range anchors {
		results[a.ID] = Recover(a, text)
	}
	return results
}

// located maps a plain-text match into document coordinates. Each block
// boundary before an offset renders as one newline but occupies an extra
// document position, so the preceding newline count is added. Start and end
// are adjusted separately, which keeps the width of a match that spans a
// boundary equal to its width in the document. This is an approximation:
// hard breaks and nested blocks are not weighted exactly.
func located(runes []rune, pos, length int, status Status, quality MatchQuality) RecoveryResult {
	end := pos + length
	return RecoveryResult{
		Status:       status,
		NewStart:     pos + newlinesBefore(runes, pos),
		NewEnd:       end + newlinesBefore(runes, end),
		MatchQuality: quality,
	}
}

// fuzzyFind slides a needle-wide window across the neighbourhood of start and
// returns the leftmost window with the smallest acceptable edit distance.
func fuzzyFind(runes, needle []rune, start int) (int, bool) {
	width := len(needle)
	maxDist := width / fuzzyDivisor
	lo := clamp(start-fuzzyPadding, 0, len(runes))
	hi := clamp(start+width+fuzzyPadding, 0, len(runes))

	best := -1
	bestDist := maxDist + 1
	for i := lo; i+width <= hi; i++ {
		d := levenshtein(needle, runes[i:i+width], bestDist-1)
		if d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	return best, best >= 0
}
