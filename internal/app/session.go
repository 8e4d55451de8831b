package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"chronicle/anchors/internal/anchor"
	"chronicle/anchors/internal/document"
	"chronicle/anchors/internal/gitrepo"
	"chronicle/anchors/internal/store"
	"chronicle/anchors/internal/tracker"
	"chronicle/anchors/internal/util"
)

// ErrSessionClosed is returned for operations on a closed EditSession.
var ErrSessionClosed = errors.New("edit session closed")

// EditSession is one open document. Anchors are recovered when it opens and
// then follow the live document; settled positions are written to the store
// after each burst of edits.
type EditSession struct {
	ID         string
	DocumentID string
	Doc        *document.Doc
	Report     ReanchorReport

	svc     *Service
	title   string
	author  string
	tracker *tracker.Tracker

	mu     sync.Mutex
	closed bool
}

// OpenSession loads the head revision, recovers its anchors and starts live
// tracking.
func (s *Service) OpenSession(ctx context.Context, documentID, author string) (*EditSession, error) {
	content, info, err := s.headContent(documentID)
	if err != nil {
		return nil, err
	}
	doc, err := parseContent(content)
	if err != nil {
		return nil, err
	}
	report, err := s.reanchor(ctx, documentID, info.Hash, doc)
	if err != nil {
		return nil, err
	}

	session := &EditSession{
		ID:         util.NewID("ses"),
		DocumentID: documentID,
		Doc:        doc,
		Report:     report,
		svc:        s,
		title:      content.Title,
		author:     s.author(author),
	}
	var opts []tracker.Option
	if s.cfg.TrackerWindow > 0 {
		opts = append(opts, tracker.WithWindow(s.cfg.TrackerWindow))
	}
	session.tracker = tracker.New(doc, session.persist, opts...)
	log.Printf("session %s: opened %s at %s (tracker %s)", session.ID, documentID, info.Hash, session.tracker.ID())
	return session, nil
}

// persist stores the ranges of one settled burst. doc is the frozen state the
// ranges were read from, so snapshot text always matches the offsets.
func (e *EditSession) persist(doc *document.Doc, ranges []anchor.Range) {
	ctx, cancel := persistTimeout()
	defer cancel()
	anchors := anchorsFromRanges(doc, ranges)
	if err := e.svc.store.SaveTracked(ctx, e.DocumentID, anchors); err != nil {
		log.Printf("session %s: save tracked anchors: %v", e.ID, err)
	}
}

// EditOp is a single scripted edit.
type EditOp struct {
	Op       string `json:"op"`
	Pos      int    `json:"pos,omitempty"`
	From     int    `json:"from,omitempty"`
	To       int    `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	ID       string `json:"id,omitempty"`
	Label    int    `json:"label,omitempty"`
	Resolved bool   `json:"resolved,omitempty"`
}

// Apply performs op on the session document.
func (e *EditSession) Apply(op EditOp) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	var err error
	switch op.Op {
	case "insert":
		err = e.Doc.InsertText(op.Pos, op.Text)
	case "delete":
		err = e.Doc.Delete(op.From, op.To)
	case "split":
		err = e.Doc.SplitBlock(op.Pos)
	case "comment":
		tag := anchor.Tag{ID: op.ID, Label: op.Label, Resolved: op.Resolved}
		if _, parseErr := anchor.ParseTag(tag.Attrs()); parseErr != nil {
			return domainError(CodeValidation, "invalid comment attributes", map[string]any{"error": parseErr.Error()})
		}
		err = e.Doc.AddMark(op.From, op.To, document.Mark{Type: anchor.MarkType, Attrs: tag.Attrs()})
	case "undo":
		e.Doc.Undo()
	case "redo":
		e.Doc.Redo()
	default:
		return domainError(CodeValidation, "unknown edit operation", map[string]any{"op": op.Op})
	}
	if err != nil {
		return domainError(CodeValidation, "edit rejected", map[string]any{"op": op.Op, "error": err.Error()})
	}
	return nil
}

// Close stops tracking, stores the final anchor set and commits the document
// with its anchors when anything changed. Annotations whose text was deleted
// during the session are dropped.
func (e *EditSession) Close(ctx context.Context, message string) (store.CommitInfo, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return store.CommitInfo{}, ErrSessionClosed
	}
	e.closed = true
	e.mu.Unlock()

	// The tracker does not report a document without annotations, so the
	// final set is saved here rather than through a flush.
	e.tracker.Dispose()

	final := e.Doc.Snapshot()
	anchors := anchorsFromRanges(final, tracker.Scan(final))
	if err := e.svc.store.SaveTracked(ctx, e.DocumentID, anchors); err != nil {
		return store.CommitInfo{}, fmt.Errorf("close session %s: %w", e.ID, err)
	}
	raw, err := json.Marshal(final)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("encode document: %w", err)
	}

	if message == "" {
		message = "Edit document"
	}
	content := gitrepo.Content{Title: e.title, Doc: raw, Anchors: anchors}
	info, err := e.svc.commitIfChanged(e.DocumentID, content, e.author, message)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("close session %s: %w", e.ID, err)
	}
	if err := e.svc.store.UpsertDocument(ctx, store.Document{ID: e.DocumentID, Title: e.title, HeadHash: info.Hash, UpdatedBy: e.author}); err != nil {
		return store.CommitInfo{}, fmt.Errorf("close session %s: %w", e.ID, err)
	}
	if e.svc.cache != nil {
		if err := e.svc.cache.Invalidate(ctx, e.DocumentID); err != nil {
			log.Printf("session %s: invalidate recovery cache: %v", e.ID, err)
		}
	}
	log.Printf("session %s: closed %s at %s", e.ID, e.DocumentID, info.Hash)
	return info, nil
}
