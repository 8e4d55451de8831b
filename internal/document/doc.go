package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// ErrInvalidDocument indicates JSON that does not describe a doc node.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrOutOfRange indicates a position outside the document.
	ErrOutOfRange = errors.New("position out of range")
	// ErrNotTextPosition indicates a position that is not inside a textblock.
	ErrNotTextPosition = errors.New("position is not inside a textblock")
	// ErrUnsupportedEdit indicates an edit the model cannot express.
	ErrUnsupportedEdit = errors.New("unsupported edit")
)

const maxHistory = 100

// TextNode is a text node together with its document position.
type TextNode struct {
	Pos   int
	Text  string
	Marks []Mark
}

// Len is the number of positions the text occupies.
func (t TextNode) Len() int {
	return utf8.RuneCountInString(t.Text)
}

// Doc is a live, editable document. Reads are safe from any goroutine; change
// listeners run synchronously on the goroutine that made the edit.
type Doc struct {
	mu      sync.RWMutex
	root    *Node
	history []*Node
	future  []*Node

	listenerMu sync.Mutex
	listeners  []listener
	nextID     int
}

type listener struct {
	id int
	fn func()
}

// New builds a document from top-level blocks.
func New(blocks ...*Node) *Doc {
	return &Doc{root: &Node{Type: "doc", Content: blocks}}
}

// Parse decodes ProseMirror JSON.
func Parse(data []byte) (*Doc, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if root.Type != "doc" {
		return nil, fmt.Errorf("%w: root type %q", ErrInvalidDocument, root.Type)
	}
	return &Doc{root: &root}, nil
}

// MarshalJSON encodes the current state as ProseMirror JSON.
func (d *Doc) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.Marshal(d.root)
}

// Root returns a copy of the current tree.
func (d *Doc) Root() *Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.Clone()
}

// Snapshot returns a detached document holding the current state. Edits
// replace the tree rather than modifying it, so the snapshot shares it
// without copying and later edits to d never show through. The snapshot has
// no history and no listeners.
func (d *Doc) Snapshot() *Doc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &Doc{root: d.root}
}

// Size is the size of the document content.
func (d *Doc) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.contentSize()
}

// Subscribe registers fn to run after every change. The returned function
// removes the subscription.
func (d *Doc) Subscribe(fn func()) func() {
	d.listenerMu.Lock()
	defer d.listenerMu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.listenerMu.Lock()
			defer d.listenerMu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (d *Doc) notify() {
	d.listenerMu.Lock()
	snapshot := make([]listener, len(d.listeners))
	copy(snapshot, d.listeners)
	d.listenerMu.Unlock()

	for _, l := range snapshot {
		l.fn()
	}
}

// TextNodes lists every text node in document order.
func (d *Doc) TextNodes() []TextNode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var nodes []TextNode
	var walk func(parent *Node, start int)
	walk = func(parent *Node, start int) {
		pos := start
		for _, child := range parent.Content {
			switch {
			case child.IsText():
				nodes = append(nodes, TextNode{Pos: pos, Text: child.Text, Marks: cloneMarks(child.Marks)})
			case !child.IsLeaf():
				walk(child, pos+1)
			}
			pos += child.Size()
		}
	}
	walk(d.root, 0)
	return nodes
}

// PlainText renders textblocks joined by newlines. Hard breaks also render as
// newlines.
func (d *Doc) PlainText() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var blocks []string
	eachTextblock(d.root, func(block *Node, _ int) {
		var b strings.Builder
		for _, child := range block.Content {
			writeInline(&b, child)
		}
		blocks = append(blocks, b.String())
	})
	return strings.Join(blocks, "\n")
}

// TextBetween renders the text in [from, to) the same way PlainText does.
func (d *Doc) TextBetween(from, to int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	first := true
	eachTextblock(d.root, func(block *Node, start int) {
		end := start + block.contentSize()
		if end <= from || start >= to {
			return
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false

		pos := start
		for _, child := range block.Content {
			size := child.Size()
			lo := max(pos, from)
			hi := min(pos+size, to)
			if lo < hi {
				if child.IsText() {
					runes := []rune(child.Text)
					b.WriteString(string(runes[lo-pos : hi-pos]))
				} else {
					writeInline(&b, child)
				}
			}
			pos += size
		}
	})
	return b.String()
}

// Linear renders the document with exactly one rune per position: text as is,
// every block boundary and inline leaf as Structural.
func (d *Doc) Linear() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	var walk func(parent *Node)
	walk = func(parent *Node) {
		for _, child := range parent.Content {
			switch {
			case child.IsText():
				b.WriteString(child.Text)
			case child.IsLeaf():
				b.WriteRune(Structural)
			default:
				b.WriteRune(Structural)
				walk(child)
				b.WriteRune(Structural)
			}
		}
	}
	walk(d.root)
	return b.String()
}

func writeInline(b *strings.Builder, n *Node) {
	switch {
	case n.IsText():
		b.WriteString(n.Text)
	case n.Type == "hardBreak":
		b.WriteByte('\n')
	}
}

// eachTextblock visits textblocks in order with the position where their
// content starts.
func eachTextblock(root *Node, fn func(block *Node, start int)) {
	var walk func(parent *Node, start int)
	walk = func(parent *Node, start int) {
		pos := start
		for _, child := range parent.Content {
			switch {
			case child.IsTextblock():
				fn(child, pos+1)
			case !child.IsText() && !child.IsLeaf():
				walk(child, pos+1)
			}
			pos += child.Size()
		}
	}
	walk(root, 0)
}
