package anchor

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Remap carries anchors from oldText to newText through a character diff of the
// two snapshots. Both texts must use the same coordinate space as the anchor
// offsets. Text inserted exactly at an anchor's start pushes it right; text
// inserted at its end stays outside. Offsets inside deleted text collapse to the
// deletion point. AnchorText is left untouched; callers refresh it from the
// document they remapped into.
func Remap(anchors []Anchor, oldText, newText string) []Anchor {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)

	mapped := make([]Anchor, 0, len(anchors))
	for _, a := range anchors {
		start := mapOffset(a.StartOffset, diffs, true)
		end := mapOffset(a.EndOffset, diffs, false)
		if end < start {
			end = start
		}
		a.StartOffset = start
		a.EndOffset = end
		mapped = append(mapped, a)
	}
	return mapped
}

// mapOffset translates a rune offset in the diff's source text to the target
// text. stickRight decides which side of an insertion at exactly pos wins.
func mapOffset(pos int, diffs []diffmatchpatch.Diff, stickRight bool) int {
	if pos < 0 {
		pos = 0
	}
	oldPos := 0
	newPos := 0
	for _, diff := range diffs {
		n := utf8.RuneCountInString(diff.Text)
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			if pos < oldPos+n {
				return newPos + (pos - oldPos)
			}
			oldPos += n
			newPos += n
		case diffmatchpatch.DiffDelete:
			if pos < oldPos+n {
				return newPos
			}
			oldPos += n
		case diffmatchpatch.DiffInsert:
			if pos == oldPos && !stickRight {
				return newPos
			}
			newPos += n
		}
	}
	return newPos + (pos - oldPos)
}
