package anchor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MarkType is the document mark name that carries annotation attributes.
const MarkType = "comment"

// ErrMalformedTag indicates a comment mark whose attributes cannot be read.
var ErrMalformedTag = errors.New("malformed annotation tag")

// Tag is the validated attribute set of a comment mark.
type Tag struct {
	ID       string
	Label    int
	Resolved bool
}

// ParseTag reads the untyped mark attributes produced by the document engine.
// Labels may arrive as JSON numbers or numeric strings; resolved defaults to false.
func ParseTag(attrs map[string]any) (Tag, error) {
	if attrs == nil {
		return Tag{}, fmt.Errorf("%w: no attributes", ErrMalformedTag)
	}

	rawID, ok := attrs["id"].(string)
	if !ok || strings.TrimSpace(rawID) == "" {
		return Tag{}, fmt.Errorf("%w: id must be a non-empty string", ErrMalformedTag)
	}

	label, err := parseLabel(attrs["label"])
	if err != nil {
		return Tag{}, fmt.Errorf("%w: %v", ErrMalformedTag, err)
	}

	resolved := false
	switch value := attrs["resolved"].(type) {
	case nil:
	case bool:
		resolved = value
	default:
		return Tag{}, fmt.Errorf("%w: resolved must be a boolean, got %T", ErrMalformedTag, value)
	}

	return Tag{ID: strings.TrimSpace(rawID), Label: label, Resolved: resolved}, nil
}

func parseLabel(raw any) (int, error) {
	var label int
	switch value := raw.(type) {
	case float64:
		if value != math.Trunc(value) {
			return 0, fmt.Errorf("label must be an integer, got %v", value)
		}
		label = int(value)
	case int:
		label = value
	case int64:
		label = int(value)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("label %q is not numeric", value)
		}
		label = parsed
	case nil:
		return 0, fmt.Errorf("label is missing")
	default:
		return 0, fmt.Errorf("label has unsupported type %T", value)
	}
	if label < 1 {
		return 0, fmt.Errorf("label must be positive, got %d", label)
	}
	return label, nil
}

// Attrs renders the tag back into mark attributes.
func (t Tag) Attrs() map[string]any {
	return map[string]any{
		"id":       t.ID,
		"label":    float64(t.Label),
		"resolved": t.Resolved,
	}
}
