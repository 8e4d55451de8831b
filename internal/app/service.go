package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"chronicle/anchors/internal/anchor"
	"chronicle/anchors/internal/cache"
	"chronicle/anchors/internal/config"
	"chronicle/anchors/internal/document"
	"chronicle/anchors/internal/gitrepo"
	"chronicle/anchors/internal/store"
	"chronicle/anchors/internal/tracker"
)

type dataStore interface {
	GetDocument(context.Context, string) (store.Document, error)
	UpsertDocument(context.Context, store.Document) error
	ListAnchors(context.Context, string) ([]store.AnchorRecord, error)
	UpsertAnchor(context.Context, string, anchor.Anchor) error
	UpsertAnchors(context.Context, string, []anchor.Anchor) error
	SaveTracked(context.Context, string, []anchor.Anchor) error
	SaveRecoveryResults(context.Context, string, map[string]anchor.RecoveryResult) error
	CountByStatus(context.Context, string) (map[anchor.Status]int, error)
	Ping(ctx context.Context) error
}

type gitService interface {
	EnsureDocumentRepo(string, gitrepo.Content, string) (bool, error)
	CommitContent(string, gitrepo.Content, string, string) (store.CommitInfo, error)
	GetHeadContent(string) (gitrepo.Content, store.CommitInfo, error)
	GetContentByHash(string, string) (gitrepo.Content, error)
	History(string, int) ([]store.CommitInfo, error)
}

type recoveryCache interface {
	Get(context.Context, string, string) (map[string]anchor.RecoveryResult, error)
	Put(context.Context, string, string, map[string]anchor.RecoveryResult) error
	Invalidate(context.Context, string) error
	Ping(context.Context) error
}

type Service struct {
	cfg   config.Config
	store dataStore
	git   gitService
	cache recoveryCache
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables caching of recovery batches.
func WithCache(c *cache.RedisCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitrepo.Service, opts ...Option) *Service {
	s := newService(cfg, dataStore, gitService)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newService(cfg config.Config, dataStore dataStore, gitService gitService) *Service {
	return &Service{
		cfg:   cfg,
		store: dataStore,
		git:   gitService,
	}
}

// ReanchorReport summarises a recovery pass over one document.
type ReanchorReport struct {
	DocumentID string                           `json:"documentId"`
	Revision   string                           `json:"revision"`
	Results    map[string]anchor.RecoveryResult `json:"results"`
	Counts     map[anchor.Status]int            `json:"counts"`
	Cached     bool                             `json:"cached"`
}

// Reanchor recovers every stored anchor of a document against its current
// text and persists the outcome.
func (s *Service) Reanchor(ctx context.Context, documentID string) (ReanchorReport, error) {
	content, info, err := s.headContent(documentID)
	if err != nil {
		return ReanchorReport{}, err
	}
	doc, err := parseContent(content)
	if err != nil {
		return ReanchorReport{}, err
	}
	return s.reanchor(ctx, documentID, info.Hash, doc)
}

func (s *Service) reanchor(ctx context.Context, documentID, revision string, doc *document.Doc) (ReanchorReport, error) {
	records, err := s.store.ListAnchors(ctx, documentID)
	if err != nil {
		return ReanchorReport{}, err
	}
	anchors := make([]anchor.Anchor, 0, len(records))
	for _, record := range records {
		anchors = append(anchors, record.Anchor)
	}

	text := doc.PlainText()
	report := ReanchorReport{DocumentID: documentID, Revision: revision}
	fingerprint := cache.Fingerprint(text, anchors)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, documentID, fingerprint)
		switch {
		case err == nil:
			report.Results = cached
			report.Cached = true
		case !errors.Is(err, cache.ErrMiss):
			log.Printf("reanchor: cache lookup for %s failed: %v", documentID, err)
		}
	}
	if report.Results == nil {
		report.Results = anchor.RecoverAll(anchors, text)
		if s.cache != nil {
			if err := s.cache.Put(ctx, documentID, fingerprint, report.Results); err != nil {
				log.Printf("reanchor: cache store for %s failed: %v", documentID, err)
			}
		}
	}

	if err := s.store.SaveRecoveryResults(ctx, documentID, report.Results); err != nil {
		return ReanchorReport{}, err
	}

	report.Counts = make(map[anchor.Status]int)
	for _, result := range report.Results {
		report.Counts[result.Status]++
	}
	if n := report.Counts[anchor.StatusOrphaned] + report.Counts[anchor.StatusUncertain]; n > 0 {
		log.Printf("reanchor: %s has %d orphaned and %d uncertain anchors", documentID, report.Counts[anchor.StatusOrphaned], report.Counts[anchor.StatusUncertain])
	}
	return report, nil
}

// ImportInput is a document snapshot to bring under management.
type ImportInput struct {
	Title  string
	Doc    json.RawMessage
	Author string
}

// ImportDocument stores a ProseMirror document and the anchors its comment
// marks describe. Importing an existing document records a new revision.
func (s *Service) ImportDocument(ctx context.Context, documentID string, input ImportInput) (store.CommitInfo, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return store.CommitInfo{}, domainError(CodeValidation, "document id is required", nil)
	}
	doc, err := document.Parse(input.Doc)
	if err != nil {
		return store.CommitInfo{}, domainError(CodeInvalidDocument, "document is not valid ProseMirror JSON", map[string]any{"error": err.Error()})
	}
	author := s.author(input.Author)
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = documentID
	}

	anchors := anchorsFromRanges(doc, tracker.Scan(doc))
	content := gitrepo.Content{Title: title, Doc: input.Doc, Anchors: anchors}

	created, err := s.git.EnsureDocumentRepo(documentID, content, author)
	if err != nil {
		return store.CommitInfo{}, err
	}
	var info store.CommitInfo
	if created {
		_, info, err = s.git.GetHeadContent(documentID)
	} else {
		info, err = s.commitIfChanged(documentID, content, author, "Re-import document")
	}
	if err != nil {
		return store.CommitInfo{}, err
	}

	if err := s.store.UpsertDocument(ctx, store.Document{ID: documentID, Title: title, HeadHash: info.Hash, UpdatedBy: author}); err != nil {
		return store.CommitInfo{}, err
	}
	if err := s.store.SaveTracked(ctx, documentID, anchors); err != nil {
		return store.CommitInfo{}, err
	}
	log.Printf("import: %s at %s with %d anchors", documentID, info.Hash, len(anchors))
	return info, nil
}

// AddAnchor registers an anchor created outside an editing session.
func (s *Service) AddAnchor(ctx context.Context, documentID string, a anchor.Anchor) error {
	if strings.TrimSpace(a.ID) == "" || a.Label < 1 {
		return domainError(CodeValidation, "anchor needs an id and a positive label", map[string]any{"id": a.ID, "label": a.Label})
	}
	if a.StartOffset < 0 || a.EndOffset < a.StartOffset {
		return domainError(CodeValidation, "anchor offsets must satisfy 0 <= start <= end", map[string]any{"start": a.StartOffset, "end": a.EndOffset})
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(CodeNotFound, "document not found", map[string]any{"documentId": documentID})
		}
		return err
	}
	return s.store.UpsertAnchor(ctx, documentID, a)
}

// RemapRevision carries the anchors recorded at fromHash forward to the head
// revision by diffing the two snapshots, then persists them. Anchors whose
// text was deleted collapse to the deletion point and keep their old text.
// Anchors created after fromHash are left as they are.
func (s *Service) RemapRevision(ctx context.Context, documentID, fromHash string) ([]anchor.Anchor, error) {
	head, info, err := s.headContent(documentID)
	if err != nil {
		return nil, err
	}
	past, err := s.git.GetContentByHash(documentID, fromHash)
	if err != nil {
		return nil, domainError(CodeNotFound, "revision not found", map[string]any{"documentId": documentID, "revision": fromHash})
	}
	headDoc, err := parseContent(head)
	if err != nil {
		return nil, err
	}
	pastDoc, err := parseContent(past)
	if err != nil {
		return nil, err
	}

	anchors := past.Anchors
	if len(anchors) == 0 {
		records, err := s.store.ListAnchors(ctx, documentID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			anchors = append(anchors, record.Anchor)
		}
	}

	remapped := anchor.Remap(anchors, pastDoc.Linear(), headDoc.Linear())
	for i := range remapped {
		if remapped[i].EndOffset > remapped[i].StartOffset {
			remapped[i].AnchorText = headDoc.TextBetween(remapped[i].StartOffset, remapped[i].EndOffset)
		}
	}
	if err := s.store.UpsertAnchors(ctx, documentID, remapped); err != nil {
		return nil, err
	}
	log.Printf("remap: %s moved %d anchors from %s to %s", documentID, len(remapped), fromHash, info.Hash)
	return remapped, nil
}

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]store.CommitInfo, error) {
	items, err := s.git.History(documentID, limit)
	if errors.Is(err, gitrepo.ErrNoRepository) {
		return nil, domainError(CodeNotFound, "document not found", map[string]any{"documentId": documentID})
	}
	return items, err
}

// StatusReport lists the stored anchors of a document with the outcome of
// their last recovery.
type StatusReport struct {
	DocumentID string                `json:"documentId"`
	HeadHash   string                `json:"headHash"`
	Anchors    []store.AnchorRecord  `json:"anchors"`
	Counts     map[anchor.Status]int `json:"counts"`
}

// Status reports the stored anchors of a document. Anchors positioned by live
// tracking since the last recovery carry no status and are not counted.
func (s *Service) Status(ctx context.Context, documentID string) (StatusReport, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return StatusReport{}, domainError(CodeNotFound, "document not found", map[string]any{"documentId": documentID})
	}
	if err != nil {
		return StatusReport{}, err
	}
	records, err := s.store.ListAnchors(ctx, documentID)
	if err != nil {
		return StatusReport{}, err
	}
	counts, err := s.store.CountByStatus(ctx, documentID)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{DocumentID: documentID, HeadHash: doc.HeadHash, Anchors: records, Counts: counts}, nil
}

// Ping checks the database and, when enabled, the recovery cache.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			return fmt.Errorf("ping recovery cache: %w", err)
		}
	}
	return nil
}

func (s *Service) headContent(documentID string) (gitrepo.Content, store.CommitInfo, error) {
	content, info, err := s.git.GetHeadContent(documentID)
	if errors.Is(err, gitrepo.ErrNoRepository) {
		return gitrepo.Content{}, store.CommitInfo{}, domainError(CodeNotFound, "document not found", map[string]any{"documentId": documentID})
	}
	if err != nil {
		return gitrepo.Content{}, store.CommitInfo{}, err
	}
	return content, info, nil
}

func (s *Service) commitIfChanged(documentID string, content gitrepo.Content, author, message string) (store.CommitInfo, error) {
	head, info, err := s.git.GetHeadContent(documentID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	if !gitrepo.HasChanges(head, content) {
		return info, nil
	}
	return s.git.CommitContent(documentID, content, author, message)
}

func (s *Service) author(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if s.cfg.Author != "" {
		return s.cfg.Author
	}
	return "Chronicle"
}

func parseContent(content gitrepo.Content) (*document.Doc, error) {
	if len(content.Doc) == 0 {
		return document.New(), nil
	}
	doc, err := document.Parse(content.Doc)
	if err != nil {
		return nil, domainError(CodeInvalidDocument, "stored document is not valid ProseMirror JSON", map[string]any{"error": err.Error()})
	}
	return doc, nil
}

// anchorsFromRanges turns tracked ranges into storable anchors, capturing the
// text each one currently covers.
func anchorsFromRanges(doc *document.Doc, ranges []anchor.Range) []anchor.Anchor {
	anchors := make([]anchor.Anchor, 0, len(ranges))
	for _, r := range ranges {
		anchors = append(anchors, anchor.Anchor{
			ID:          r.ID,
			Label:       r.Label,
			StartOffset: r.Start,
			EndOffset:   r.End,
			AnchorText:  doc.TextBetween(r.Start, r.End),
			Resolved:    r.Resolved,
		})
	}
	return anchors
}

func persistTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
