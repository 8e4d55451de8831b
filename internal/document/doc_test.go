package document

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func comment(id string, label int) Mark {
	return Mark{Type: "comment", Attrs: map[string]any{"id": id, "label": float64(label), "resolved": false}}
}

// sampleDoc is "Title" / "Hello world" with "world" commented.
func sampleDoc() *Doc {
	return New(
		Heading(1, Text("Title")),
		Paragraph(Text("Hello "), Text("world", comment("c1", 1))),
	)
}

func TestParseAndMarshal(t *testing.T) {
	raw := `{
		"type":"doc",
		"content":[
			{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Doc"}]},
			{"type":"paragraph","content":[
				{"type":"text","text":"Sub "},
				{"type":"text","text":"marked","marks":[{"type":"comment","attrs":{"id":"c1","label":1}}]}
			]}
		]
	}`
	doc, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := doc.PlainText(); got != "Doc\nSub marked" {
		t.Fatalf("PlainText() = %q", got)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	again, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse(encoded) error = %v", err)
	}
	if again.Size() != doc.Size() || again.PlainText() != doc.PlainText() {
		t.Fatalf("round trip changed the document: %s", encoded)
	}
}

func TestParseRejectsNonDocuments(t *testing.T) {
	for _, raw := range []string{`{"type":"paragraph"}`, `not json`, `[]`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("Parse(%s) error = %v, want ErrInvalidDocument", raw, err)
		}
	}
}

func TestPositions(t *testing.T) {
	doc := sampleDoc()
	// heading: open 0, "Title" 1..6, close 6; paragraph: open 7, text from 8.
	if got := doc.Size(); got != 7+13 {
		t.Fatalf("Size() = %d, want 20", got)
	}

	nodes := doc.TextNodes()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 text nodes, got %d", len(nodes))
	}
	wantPos := []int{1, 8, 14}
	for i, node := range nodes {
		if node.Pos != wantPos[i] {
			t.Errorf("node %d (%q) at %d, want %d", i, node.Text, node.Pos, wantPos[i])
		}
	}
	if nodes[2].Len() != 5 || len(nodes[2].Marks) != 1 {
		t.Fatalf("unexpected commented node: %+v", nodes[2])
	}
}

func TestTextBetweenAndLinear(t *testing.T) {
	doc := sampleDoc()
	if got := doc.TextBetween(14, 19); got != "world" {
		t.Fatalf("TextBetween(14, 19) = %q", got)
	}
	if got := doc.TextBetween(3, 11); got != "tle\nHel" {
		t.Fatalf("TextBetween(3, 11) = %q", got)
	}

	linear := []rune(doc.Linear())
	if len(linear) != doc.Size() {
		t.Fatalf("Linear() has %d runes, document size %d", len(linear), doc.Size())
	}
	if string(linear[14:19]) != "world" || linear[0] != Structural || linear[6] != Structural {
		t.Fatalf("Linear() = %q", string(linear))
	}
}

func TestHardBreakRendersAsNewline(t *testing.T) {
	doc := New(Paragraph(Text("one"), HardBreak(), Text("two")))
	if got := doc.PlainText(); got != "one\ntwo" {
		t.Fatalf("PlainText() = %q", got)
	}
	nodes := doc.TextNodes()
	if nodes[1].Pos != 5 {
		t.Fatalf("text after hard break at %d, want 5", nodes[1].Pos)
	}
}

func TestInsertTextMarkInheritance(t *testing.T) {
	tests := []struct {
		name        string
		pos         int
		wantComment string
	}{
		{name: "before the comment", pos: 14, wantComment: "world"},
		{name: "inside the comment", pos: 16, wantComment: "woXXrld"},
		{name: "after the comment", pos: 19, wantComment: "world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDoc()
			if err := doc.InsertText(tt.pos, "XX"); err != nil {
				t.Fatalf("InsertText() error = %v", err)
			}
			var commented strings.Builder
			for _, node := range doc.TextNodes() {
				if len(node.Marks) > 0 {
					commented.WriteString(node.Text)
				}
			}
			if commented.String() != tt.wantComment {
				t.Fatalf("commented text = %q, want %q", commented.String(), tt.wantComment)
			}
		})
	}
}

func TestInsertTextKeepsInclusiveMarks(t *testing.T) {
	bold := Mark{Type: "bold"}
	doc := New(Paragraph(Text("bold", bold), Text(" plain")))
	if err := doc.InsertText(5, "er"); err != nil {
		t.Fatalf("InsertText() error = %v", err)
	}
	nodes := doc.TextNodes()
	if nodes[0].Text != "bolder" {
		t.Fatalf("expected bold to extend, got %+v", nodes)
	}
}

func TestInsertTextRejectsInvalidPositions(t *testing.T) {
	doc := sampleDoc()
	if err := doc.InsertText(0, "x"); !errors.Is(err, ErrNotTextPosition) {
		t.Fatalf("InsertText(0) error = %v, want ErrNotTextPosition", err)
	}
	if err := doc.InsertText(99, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("InsertText(99) error = %v, want ErrOutOfRange", err)
	}
	if err := doc.InsertText(3, "a\nb"); !errors.Is(err, ErrUnsupportedEdit) {
		t.Fatalf("InsertText(newline) error = %v, want ErrUnsupportedEdit", err)
	}
	if doc.PlainText() != "Title\nHello world" {
		t.Fatalf("failed edits changed the document: %q", doc.PlainText())
	}
}

func TestDelete(t *testing.T) {
	doc := sampleDoc()
	if err := doc.Delete(8, 10); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := doc.PlainText(); got != "Title\nllo world" {
		t.Fatalf("PlainText() = %q", got)
	}

	// Join the heading and the paragraph by deleting across the boundary.
	if err := doc.Delete(6, 8); err != nil {
		t.Fatalf("Delete(boundary) error = %v", err)
	}
	if got := doc.PlainText(); got != "Titlello world" {
		t.Fatalf("PlainText() after join = %q", got)
	}
	root := doc.Root()
	if len(root.Content) != 1 || root.Content[0].Type != "heading" {
		t.Fatalf("expected a single heading after join, got %+v", root.Content)
	}
}

func TestSplitBlockKeepsMarksOnBothHalves(t *testing.T) {
	doc := sampleDoc()
	if err := doc.SplitBlock(16); err != nil {
		t.Fatalf("SplitBlock() error = %v", err)
	}
	if got := doc.PlainText(); got != "Title\nHello wo\nrld" {
		t.Fatalf("PlainText() = %q", got)
	}
	var commented []TextNode
	for _, node := range doc.TextNodes() {
		if len(node.Marks) > 0 {
			commented = append(commented, node)
		}
	}
	if len(commented) != 2 || commented[0].Pos != 14 || commented[1].Pos != 18 {
		t.Fatalf("unexpected fragments: %+v", commented)
	}
}

func TestAddMarkSplitsAndMerges(t *testing.T) {
	doc := New(Paragraph(Text("abcdef")))
	if err := doc.AddMark(2, 5, Mark{Type: "bold"}); err != nil {
		t.Fatalf("AddMark() error = %v", err)
	}
	if nodes := doc.TextNodes(); len(nodes) != 3 || nodes[1].Text != "bcd" {
		t.Fatalf("unexpected nodes after AddMark: %+v", nodes)
	}
	if err := doc.AddMark(1, 7, comment("c1", 1)); err != nil {
		t.Fatalf("AddMark(comment) error = %v", err)
	}
	if err := doc.AddMark(3, 4, comment("c2", 2)); err != nil {
		t.Fatalf("AddMark(second comment) error = %v", err)
	}
	for _, node := range doc.TextNodes() {
		if node.Pos == 3 && len(node.Marks) != 3 {
			t.Fatalf("expected bold and two comments on %q, got %+v", node.Text, node.Marks)
		}
	}
	if err := doc.AddMark(0, 99, Mark{Type: "bold"}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("AddMark(out of range) error = %v", err)
	}
}

func TestUndoRedo(t *testing.T) {
	doc := sampleDoc()
	if doc.Undo() {
		t.Fatal("expected nothing to undo")
	}
	if err := doc.InsertText(8, "Oh, "); err != nil {
		t.Fatalf("InsertText() error = %v", err)
	}
	if !doc.Undo() {
		t.Fatal("expected undo to succeed")
	}
	if got := doc.PlainText(); got != "Title\nHello world" {
		t.Fatalf("PlainText() after undo = %q", got)
	}
	if !doc.Redo() {
		t.Fatal("expected redo to succeed")
	}
	if got := doc.PlainText(); got != "Title\nOh, Hello world" {
		t.Fatalf("PlainText() after redo = %q", got)
	}
	if doc.Redo() {
		t.Fatal("expected nothing to redo")
	}
}

func TestSubscribe(t *testing.T) {
	doc := sampleDoc()
	calls := 0
	cancel := doc.Subscribe(func() { calls++ })

	_ = doc.InsertText(8, "A")
	_ = doc.InsertText(99, "B")
	doc.Undo()
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}

	cancel()
	cancel()
	_ = doc.InsertText(8, "C")
	if calls != 2 {
		t.Fatalf("expected no notifications after cancel, got %d", calls)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	doc := sampleDoc()
	notified := 0
	doc.Subscribe(func() { notified++ })

	snap := doc.Snapshot()
	if err := doc.InsertText(1, "Big "); err != nil {
		t.Fatalf("InsertText() error = %v", err)
	}
	if got := snap.PlainText(); got != "Title\nHello world" {
		t.Fatalf("snapshot changed with the document: %q", got)
	}
	if got := doc.PlainText(); got != "Big Title\nHello world" {
		t.Fatalf("PlainText() = %q", got)
	}

	if err := snap.InsertText(1, "Old "); err != nil {
		t.Fatalf("snapshot InsertText() error = %v", err)
	}
	if notified != 1 {
		t.Fatalf("editing the snapshot notified the document's listeners: %d", notified)
	}
	if got := doc.PlainText(); got != "Big Title\nHello world" {
		t.Fatalf("editing the snapshot changed the document: %q", got)
	}
	if got := snap.TextBetween(18, 23); got != "world" {
		t.Fatalf("snapshot TextBetween() = %q", got)
	}
}
