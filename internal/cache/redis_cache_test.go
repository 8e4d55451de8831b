package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronicle/anchors/internal/anchor"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

var sampleAnchors = []anchor.Anchor{
	{ID: "a", Label: 1, StartOffset: 0, EndOffset: 5, AnchorText: "Hello"},
	{ID: "b", Label: 2, StartOffset: 6, EndOffset: 11, AnchorText: "world"},
}

func TestNewRedisCache(t *testing.T) {
	c, _ := setupTestCache(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if _, err := NewRedisCache("not a url", time.Hour); err == nil {
		t.Error("expected error for invalid url")
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("Hello world", sampleAnchors)
	reversed := []anchor.Anchor{sampleAnchors[1], sampleAnchors[0]}
	if got := Fingerprint("Hello world", reversed); got != base {
		t.Errorf("anchor order changed the fingerprint: %s != %s", got, base)
	}
	if got := Fingerprint("Hello world!", sampleAnchors); got == base {
		t.Error("expected text change to change the fingerprint")
	}
	moved := []anchor.Anchor{sampleAnchors[0], sampleAnchors[1]}
	moved[1].StartOffset = 7
	if got := Fingerprint("Hello world", moved); got == base {
		t.Error("expected offset change to change the fingerprint")
	}
}

func TestPutAndGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	key := Fingerprint("Hello world", sampleAnchors)

	if _, err := c.Get(ctx, "doc-1", key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss before Put, got %v", err)
	}

	results := anchor.RecoverAll(sampleAnchors, "Hello world")
	if err := c.Put(ctx, "doc-1", key, results); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get(ctx, "doc-1", key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 || got["b"] != results["b"] {
		t.Errorf("expected cached results %v, got %v", results, got)
	}

	if _, err := c.Get(ctx, "doc-2", key); !errors.Is(err, ErrMiss) {
		t.Errorf("expected documents to be isolated, got %v", err)
	}
}

func TestEntriesExpire(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "doc-1", "k", map[string]anchor.RecoveryResult{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Hour)
	if _, err := c.Get(ctx, "doc-1", "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"k1", "k2"} {
		if err := c.Put(ctx, "doc-1", key, map[string]anchor.RecoveryResult{}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := c.Put(ctx, "doc-2", "k1", map[string]anchor.RecoveryResult{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := c.Invalidate(ctx, "doc-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if s.Exists("recovery:doc-1:k1") || s.Exists("recovery:doc-1:k2") {
		t.Error("expected doc-1 batches to be removed")
	}
	if !s.Exists("recovery:doc-2:k1") {
		t.Error("expected doc-2 batch to survive")
	}
	if err := c.Invalidate(ctx, "doc-missing"); err != nil {
		t.Errorf("Invalidate of empty document failed: %v", err)
	}
}

func TestCorruptEntry(t *testing.T) {
	c, s := setupTestCache(t)
	if err := s.Set("recovery:doc-1:bad", "{not json"); err != nil {
		t.Fatalf("seed miniredis: %v", err)
	}
	if _, err := c.Get(context.Background(), "doc-1", "bad"); err == nil || errors.Is(err, ErrMiss) {
		t.Errorf("expected decode error, got %v", err)
	}
}
