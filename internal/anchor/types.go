// Package anchor holds the annotation anchor types and the recovery engine that
// re-binds stored anchors to the current document text.
package anchor

// Status classifies the outcome of a recovery attempt.
type Status string

const (
	StatusRelocated Status = "relocated"
	StatusOrphaned  Status = "orphaned"
	StatusUncertain Status = "uncertain"
	StatusFallback  Status = "fallback"
)

// MatchQuality describes how the anchor text was found.
type MatchQuality string

const (
	QualityExact           MatchQuality = "exact"
	QualityCaseInsensitive MatchQuality = "case-insensitive"
	QualityFuzzy           MatchQuality = "fuzzy"
	QualityPoor            MatchQuality = "poor"
	QualityNone            MatchQuality = "none"
)

// Anchor is the stored position of an annotation. Offsets count runes in the
// document coordinate space. AnchorText is empty for legacy anchors.
type Anchor struct {
	ID          string `json:"id"`
	Label       int    `json:"label"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	AnchorText  string `json:"anchorText,omitempty"`
	Resolved    bool   `json:"resolved"`
}

// RecoveryResult is the derived, never persisted outcome of Recover.
type RecoveryResult struct {
	Status       Status       `json:"status"`
	NewStart     int          `json:"newStart"`
	NewEnd       int          `json:"newEnd"`
	MatchQuality MatchQuality `json:"matchQuality"`
}

// AsAnchor returns a copy of a positioned at the recovered offsets.
func (r RecoveryResult) AsAnchor(a Anchor) Anchor {
	a.StartOffset = r.NewStart
	a.EndOffset = r.NewEnd
	return a
}

// Range is a live-tracked annotation range, [Start, End).
type Range struct {
	ID       string `json:"id"`
	Label    int    `json:"label"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Resolved bool   `json:"resolved"`
}
