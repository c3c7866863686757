package utils

import (
	"html"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeFilename normalizes a client-supplied file name for storage and
// display: path components are stripped, any HTML markup is removed, entity
// escapes left behind by the policy are resolved, filesystem-hostile
// characters are dropped, and an empty result falls back to "file".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strictPolicy.Sanitize(name)
	// The policy entity-escapes residual text (&gt; etc.); resolve the
	// escapes, then drop the raw characters outright.
	name = html.UnescapeString(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len([]rune(name)) > 255 {
		rs := []rune(name)
		name = string(rs[:255])
	}
	return name
}
