package document

import (
	"fmt"
	"strings"
)

// location is a textblock resolved from a document position.
type location struct {
	block  *Node
	parent *Node
	index  int
	start  int
}

func (l location) offset(pos int) int {
	return pos - l.start
}

// InsertText inserts text at pos. The new text keeps the inclusive marks of
// the character before it; non-inclusive marks such as comments are kept only
// when the characters on both sides carry them.
func (d *Doc) InsertText(pos int, text string) error {
	if text == "" {
		return nil
	}
	if strings.ContainsRune(text, '\n') {
		return fmt.Errorf("%w: line breaks must be inserted with SplitBlock", ErrUnsupportedEdit)
	}

	err := d.mutate(func(root *Node) error {
		loc, err := locate(root, pos)
		if err != nil {
			return err
		}
		off := loc.offset(pos)
		marks := inheritedMarks(loc.block, off)
		idx := splitInline(loc.block, off)
		loc.block.Content = insertNode(loc.block.Content, idx, Text(text, marks...))
		normalize(loc.block)
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert text at %d: %w", pos, err)
	}
	return nil
}

// Delete removes [from, to). Ranges spanning several textblocks must start and
// end in siblings; the blocks are joined the way a backspace across them would.
func (d *Doc) Delete(from, to int) error {
	if from == to {
		return nil
	}
	if from > to {
		return fmt.Errorf("delete [%d, %d): %w", from, to, ErrOutOfRange)
	}

	err := d.mutate(func(root *Node) error {
		first, err := locate(root, from)
		if err != nil {
			return err
		}
		last, err := locate(root, to)
		if err != nil {
			return err
		}

		if first.block == last.block {
			i := splitInline(first.block, first.offset(from))
			j := splitInline(first.block, first.offset(to))
			first.block.Content = append(first.block.Content[:i:i], first.block.Content[j:]...)
			normalize(first.block)
			return nil
		}

		if first.parent != last.parent {
			return fmt.Errorf("%w: range crosses nested blocks", ErrUnsupportedEdit)
		}
		head := splitInline(first.block, first.offset(from))
		tail := splitInline(last.block, last.offset(to))
		joined := append(first.block.Content[:head:head], last.block.Content[tail:]...)
		first.block.Content = joined
		normalize(first.block)

		parent := first.parent
		parent.Content = append(parent.Content[:first.index+1:first.index+1], parent.Content[last.index+1:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete [%d, %d): %w", from, to, err)
	}
	return nil
}

// SplitBlock splits the textblock at pos in two, as pressing enter does. Marks
// stay on the text on both sides.
func (d *Doc) SplitBlock(pos int) error {
	err := d.mutate(func(root *Node) error {
		loc, err := locate(root, pos)
		if err != nil {
			return err
		}
		idx := splitInline(loc.block, loc.offset(pos))

		tail := make([]*Node, len(loc.block.Content)-idx)
		copy(tail, loc.block.Content[idx:])
		loc.block.Content = loc.block.Content[:idx:idx]

		sibling := &Node{Type: loc.block.Type, Attrs: cloneAttrs(loc.block.Attrs), Content: tail}
		loc.parent.Content = insertNode(loc.parent.Content, loc.index+1, sibling)
		return nil
	})
	if err != nil {
		return fmt.Errorf("split block at %d: %w", pos, err)
	}
	return nil
}

// AddMark applies mark to all text in [from, to). Comment marks stack; any
// other mark replaces an existing mark of the same type.
func (d *Doc) AddMark(from, to int, mark Mark) error {
	if from >= to {
		return fmt.Errorf("add mark [%d, %d): %w", from, to, ErrOutOfRange)
	}

	err := d.mutate(func(root *Node) error {
		if from < 0 || to > root.contentSize() {
			return ErrOutOfRange
		}
		eachTextblock(root, func(block *Node, start int) {
			end := start + block.contentSize()
			if end <= from || start >= to {
				return
			}
			i := splitInline(block, max(from, start)-start)
			j := splitInline(block, min(to, end)-start)
			for _, child := range block.Content[i:j] {
				if child.IsText() {
					child.Marks = withMark(child.Marks, mark)
				}
			}
			normalize(block)
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("add mark [%d, %d): %w", from, to, err)
	}
	return nil
}

// Undo reverts the last edit. It reports false when there is nothing to undo.
func (d *Doc) Undo() bool {
	d.mu.Lock()
	if len(d.history) == 0 {
		d.mu.Unlock()
		return false
	}
	d.future = append(d.future, d.root)
	d.root = d.history[len(d.history)-1]
	d.history = d.history[:len(d.history)-1]
	d.mu.Unlock()

	d.notify()
	return true
}

// Redo re-applies the last undone edit.
func (d *Doc) Redo() bool {
	d.mu.Lock()
	if len(d.future) == 0 {
		d.mu.Unlock()
		return false
	}
	d.history = append(d.history, d.root)
	d.root = d.future[len(d.future)-1]
	d.future = d.future[:len(d.future)-1]
	d.mu.Unlock()

	d.notify()
	return true
}

// mutate applies fn to a copy of the tree and swaps it in on success, so a
// failed edit leaves the document untouched.
func (d *Doc) mutate(fn func(root *Node) error) error {
	d.mu.Lock()
	next := d.root.Clone()
	if err := fn(next); err != nil {
		d.mu.Unlock()
		return err
	}
	d.history = append(d.history, d.root)
	if len(d.history) > maxHistory {
		d.history = d.history[len(d.history)-maxHistory:]
	}
	d.future = nil
	d.root = next
	d.mu.Unlock()

	d.notify()
	return nil
}

// locate finds the textblock whose content range contains pos.
func locate(root *Node, pos int) (location, error) {
	if pos < 0 || pos > root.contentSize() {
		return location{}, ErrOutOfRange
	}
	var walk func(parent *Node, start int) (location, bool)
	walk = func(parent *Node, start int) (location, bool) {
		cursor := start
		for i, child := range parent.Content {
			size := child.Size()
			switch {
			case child.IsTextblock():
				if pos >= cursor+1 && pos <= cursor+size-1 {
					return location{block: child, parent: parent, index: i, start: cursor + 1}, true
				}
			case !child.IsText() && !child.IsLeaf():
				if pos > cursor && pos < cursor+size {
					return walk(child, cursor+1)
				}
			}
			cursor += size
		}
		return location{}, false
	}
	loc, ok := walk(root, 0)
	if !ok {
		return location{}, ErrNotTextPosition
	}
	return loc, nil
}

// splitInline makes sure a node boundary falls at off and returns the index of
// the first child starting at or after it.
func splitInline(block *Node, off int) int {
	pos := 0
	for i, child := range block.Content {
		if off <= pos {
			return i
		}
		size := child.Size()
		if off < pos+size && child.IsText() {
			runes := []rune(child.Text)
			cut := off - pos
			left := &Node{Type: "text", Text: string(runes[:cut]), Marks: cloneMarks(child.Marks)}
			right := &Node{Type: "text", Text: string(runes[cut:]), Marks: cloneMarks(child.Marks)}
			block.Content[i] = left
			block.Content = insertNode(block.Content, i+1, right)
			return i + 1
		}
		pos += size
	}
	return len(block.Content)
}

// inheritedMarks decides the marks of text typed at off inside block.
func inheritedMarks(block *Node, off int) []Mark {
	before, after := neighbours(block, off)
	if before == nil {
		return nil
	}
	var marks []Mark
	for _, m := range before.Marks {
		if _, exclusive := nonInclusiveMarks[m.Type]; exclusive {
			if after == nil || !hasMark(after.Marks, m) {
				continue
			}
		}
		marks = append(marks, m)
	}
	return marks
}

// neighbours returns the inline nodes holding the characters at off-1 and off.
func neighbours(block *Node, off int) (before, after *Node) {
	pos := 0
	for _, child := range block.Content {
		size := child.Size()
		if off-1 >= pos && off-1 < pos+size {
			before = child
		}
		if off >= pos && off < pos+size {
			after = child
		}
		pos += size
	}
	return before, after
}

// normalize merges adjacent text nodes with identical marks and drops empty ones.
func normalize(block *Node) {
	merged := block.Content[:0]
	for _, child := range block.Content {
		if child.IsText() && child.Text == "" {
			continue
		}
		if n := len(merged); n > 0 && child.IsText() && merged[n-1].IsText() && sameMarkSet(merged[n-1].Marks, child.Marks) {
			merged[n-1] = &Node{Type: "text", Text: merged[n-1].Text + child.Text, Marks: merged[n-1].Marks}
			continue
		}
		merged = append(merged, child)
	}
	for i := len(merged); i < len(block.Content); i++ {
		block.Content[i] = nil
	}
	block.Content = merged
}

func withMark(marks []Mark, mark Mark) []Mark {
	if hasMark(marks, mark) {
		return marks
	}
	out := make([]Mark, 0, len(marks)+1)
	for _, m := range marks {
		if mark.Type != "comment" && m.Type == mark.Type {
			continue
		}
		out = append(out, m)
	}
	return append(out, Mark{Type: mark.Type, Attrs: cloneAttrs(mark.Attrs)})
}

func insertNode(nodes []*Node, idx int, node *Node) []*Node {
	nodes = append(nodes, nil)
	copy(nodes[idx+1:], nodes[idx:])
	nodes[idx] = node
	return nodes
}
