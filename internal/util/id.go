// Package util holds small helpers shared by the anchor packages.
package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally prefixed so log lines show
// what kind of object it names ("ses_3f2a...", "trk_91c0...").
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
