// Package document is a small ProseMirror-compatible document model: a tree of
// block and inline nodes whose text carries marks. It exposes the positions,
// plain text and change notifications the anchor subsystem consumes.
package document

import (
	"reflect"
	"unicode/utf8"
)

// Structural stands in for block boundaries and inline leaves in Linear output.
const Structural = '\uFFFC'

// Node represents a node in the ProseMirror document tree
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark represents a text mark (formatting or annotation)
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

var leafTypes = map[string]struct{}{
	"hardBreak":      {},
	"horizontalRule": {},
	"image":          {},
	"mention":        {},
	"emoji":          {},
}

var textblockTypes = map[string]struct{}{
	"paragraph": {},
	"heading":   {},
	"codeBlock": {},
}

// nonInclusiveMarks do not spread to text typed at their edges.
var nonInclusiveMarks = map[string]struct{}{
	"comment": {},
	"link":    {},
}

// IsText reports whether n is a text node.
func (n *Node) IsText() bool {
	return n.Type == "text"
}

// IsLeaf reports whether n is an atom occupying a single position.
func (n *Node) IsLeaf() bool {
	_, ok := leafTypes[n.Type]
	return ok
}

// IsTextblock reports whether n holds inline content directly.
func (n *Node) IsTextblock() bool {
	if n.IsText() || n.IsLeaf() {
		return false
	}
	if _, ok := textblockTypes[n.Type]; ok {
		return true
	}
	for _, child := range n.Content {
		if child.IsText() {
			return true
		}
	}
	return false
}

// Size is the number of positions n occupies in its parent.
func (n *Node) Size() int {
	switch {
	case n.IsText():
		return utf8.RuneCountInString(n.Text)
	case n.IsLeaf():
		return 1
	default:
		return 2 + n.contentSize()
	}
}

func (n *Node) contentSize() int {
	size := 0
	for _, child := range n.Content {
		size += child.Size()
	}
	return size
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:  n.Type,
		Attrs: cloneAttrs(n.Attrs),
		Text:  n.Text,
		Marks: cloneMarks(n.Marks),
	}
	if len(n.Content) > 0 {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	return out
}

// Text builds a text node.
func Text(text string, marks ...Mark) *Node {
	return &Node{Type: "text", Text: text, Marks: cloneMarks(marks)}
}

// Paragraph builds a paragraph holding the given inline nodes.
func Paragraph(inline ...*Node) *Node {
	return &Node{Type: "paragraph", Content: inline}
}

// Heading builds a heading of the given level.
func Heading(level int, inline ...*Node) *Node {
	return &Node{Type: "heading", Attrs: map[string]any{"level": float64(level)}, Content: inline}
}

// HardBreak builds an inline line break.
func HardBreak() *Node {
	return &Node{Type: "hardBreak"}
}

// Equal reports whether two marks have the same type and attributes.
func (m Mark) Equal(other Mark) bool {
	if m.Type != other.Type {
		return false
	}
	if len(m.Attrs) == 0 && len(other.Attrs) == 0 {
		return true
	}
	return reflect.DeepEqual(m.Attrs, other.Attrs)
}

func hasMark(marks []Mark, target Mark) bool {
	for _, m := range marks {
		if m.Equal(target) {
			return true
		}
	}
	return false
}

func sameMarkSet(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		if !hasMark(b, m) {
			return false
		}
	}
	return true
}

func cloneMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	for i, m := range marks {
		out[i] = Mark{Type: m.Type, Attrs: cloneAttrs(m.Attrs)}
	}
	return out
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for key, value := range attrs {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneAttrs(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
