package anchor

import (
	"errors"
	"testing"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]any
		want    Tag
		wantErr bool
	}{
		{
			name:  "json number label",
			attrs: map[string]any{"id": "c1", "label": 3.0, "resolved": true},
			want:  Tag{ID: "c1", Label: 3, Resolved: true},
		},
		{
			name:  "string label and missing resolved",
			attrs: map[string]any{"id": " c2 ", "label": "12"},
			want:  Tag{ID: "c2", Label: 12},
		},
		{name: "nil attrs", attrs: nil, wantErr: true},
		{name: "missing id", attrs: map[string]any{"label": 1.0}, wantErr: true},
		{name: "blank id", attrs: map[string]any{"id": "  ", "label": 1.0}, wantErr: true},
		{name: "numeric id", attrs: map[string]any{"id": 7.0, "label": 1.0}, wantErr: true},
		{name: "missing label", attrs: map[string]any{"id": "c1"}, wantErr: true},
		{name: "fractional label", attrs: map[string]any{"id": "c1", "label": 1.5}, wantErr: true},
		{name: "zero label", attrs: map[string]any{"id": "c1", "label": 0.0}, wantErr: true},
		{name: "garbage label", attrs: map[string]any{"id": "c1", "label": "one"}, wantErr: true},
		{name: "string resolved", attrs: map[string]any{"id": "c1", "label": 1.0, "resolved": "yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTag(tt.attrs)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedTag) {
					t.Fatalf("expected ErrMalformedTag, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTag() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseTag() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTagAttrsRoundTrip(t *testing.T) {
	tag := Tag{ID: "c9", Label: 4, Resolved: true}
	parsed, err := ParseTag(tag.Attrs())
	if err != nil {
		t.Fatalf("ParseTag(Attrs()) error = %v", err)
	}
	if parsed != tag {
		t.Fatalf("round trip = %+v, want %+v", parsed, tag)
	}
}
