package gitrepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chronicle/anchors/internal/anchor"
)

func sampleContent() Content {
	return Content{
		Title: "Doc",
		Doc: json.RawMessage(`{
			"type":"doc",
			"content":[
				{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Doc"}]},
				{"type":"paragraph","content":[
					{"type":"text","text":"Some "},
					{"type":"text","text":"anchored","marks":[{"type":"comment","attrs":{"id":"c1","label":1,"resolved":false}}]},
					{"type":"text","text":" text"}
				]}
			]
		}`),
		Anchors: []anchor.Anchor{{ID: "c1", Label: 1, StartOffset: 10, EndOffset: 18, AnchorText: "anchored"}},
	}
}

func TestDocumentRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	initial := sampleContent()

	created, err := svc.EnsureDocumentRepo("doc-1", initial, "Avery")
	if err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if !created {
		t.Fatal("expected the repo to be created")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	created, err = svc.EnsureDocumentRepo("doc-1", initial, "Avery")
	if err != nil || created {
		t.Fatalf("EnsureDocumentRepo() again = %v, %v; want false, nil", created, err)
	}

	updated := initial
	updated.Anchors = []anchor.Anchor{{ID: "c1", Label: 1, StartOffset: 12, EndOffset: 20, AnchorText: "anchored"}}
	commit, err := svc.CommitContent("doc-1", updated, "Avery", "Move anchor")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != commit.Hash {
		t.Fatalf("unexpected history: %+v", history)
	}

	baseline, err := svc.GetContentByHash("doc-1", history[1].Hash)
	if err != nil {
		t.Fatalf("GetContentByHash() error = %v", err)
	}
	if baseline.Anchors[0].StartOffset != 10 {
		t.Fatalf("unexpected baseline anchors: %+v", baseline.Anchors)
	}

	head, info, err := svc.GetHeadContent("doc-1")
	if err != nil {
		t.Fatalf("GetHeadContent() error = %v", err)
	}
	if info.Hash != commit.Hash || head.Anchors[0].StartOffset != 12 {
		t.Fatalf("unexpected head %s: %+v", info.Hash, head)
	}
	if string(normalizeJSON(head.Doc)) != string(normalizeJSON(initial.Doc)) {
		t.Fatalf("doc JSON mismatch after round-trip\nwant=%s\ngot=%s", normalizeJSON(initial.Doc), normalizeJSON(head.Doc))
	}
}

func TestMissingRepository(t *testing.T) {
	svc := New(t.TempDir())
	if _, _, err := svc.GetHeadContent("nope"); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("GetHeadContent() error = %v, want ErrNoRepository", err)
	}
	if _, err := svc.CommitContent("nope", sampleContent(), "Avery", "msg"); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("CommitContent() error = %v, want ErrNoRepository", err)
	}
}

func TestHasChanges(t *testing.T) {
	base := sampleContent()

	var compact bytes.Buffer
	if err := json.Compact(&compact, base.Doc); err != nil {
		t.Fatalf("compact doc: %v", err)
	}
	same := sampleContent()
	same.Doc = json.RawMessage(compact.Bytes())
	if HasChanges(base, same) {
		t.Fatal("whitespace-only doc difference should not count as a change")
	}

	retitled := sampleContent()
	retitled.Title = "Other"
	if !HasChanges(base, retitled) {
		t.Fatal("expected title change")
	}

	moved := sampleContent()
	moved.Anchors[0].EndOffset = 17
	if !HasChanges(base, moved) {
		t.Fatal("expected anchor change")
	}
}

func TestConcurrentCommitContent(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)
	initial := Content{Title: "Doc"}

	if _, err := svc.EnsureDocumentRepo("doc-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := initial
			next.Title = fmt.Sprintf("title-%02d", idx)
			if _, err := svc.CommitContent("doc-1", next, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitContent() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.GetHeadContent("doc-1")
	if err != nil {
		t.Fatalf("GetHeadContent() error = %v", err)
	}
	if !strings.HasPrefix(head.Title, "title-") {
		t.Fatalf("unexpected head content after concurrent commits: %+v", head)
	}
}

func TestSanitizeEmail(t *testing.T) {
	tests := map[string]string{
		"Avery Smith": "Avery.Smith",
		"ünïcode":     "ncode",
		"":            "user",
		"a_b-c":       "a.b.c",
	}
	for input, want := range tests {
		if got := sanitizeEmail(input); got != want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", input, got, want)
		}
	}
}
