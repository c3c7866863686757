package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"  padded.txt  ":      "padded.txt",
		"../../etc/passwd":    "passwd",
		"/abs/path/photo.jpg": "photo.jpg",
		"a&b.txt":             "a&b.txt",
		"we|ird*.txt":         "weird.txt",
		"":                    "file",
		".":                   "file",
		"..":                  "file",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestSanitizeFilenameStripsMarkup(t *testing.T) {
	got := SanitizeFilename("<script>x</script>notes.txt")
	assert.True(t, strings.HasSuffix(got, "notes.txt"), "got %q", got)
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, ">")
	assert.NotContains(t, got, "&gt;")
	assert.NotContains(t, got, "&lt;")
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := SanitizeFilename(long)
	assert.LessOrEqual(t, len([]rune(got)), 255)
}
