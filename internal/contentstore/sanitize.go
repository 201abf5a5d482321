package contentstore

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// FallbackFilename replaces names that sanitize to nothing.
	FallbackFilename = "artifact.bin"

	maxFilenameLength = 200
)

// Sanitize reduces a caller-supplied filename to a safe basename made of
// ASCII letters, digits, '_', '-' and '.'. The result never contains a path
// separator and never starts with '.', so it always resolves inside the store.
func Sanitize(raw string) string {
	decomposed := norm.NFKD.String(raw)

	spaced := strings.Map(func(r rune) rune {
		switch {
		case r > unicode.MaxASCII:
			return -1
		case r == '/' || r == '\\' || r == 0 || unicode.IsControl(r):
			return ' '
		default:
			return r
		}
	}, decomposed)

	joined := strings.Join(strings.Fields(spaced), "_")
	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		if isSafeFilenameChar(r) {
			b.WriteRune(r)
		}
	}

	name := strings.Trim(b.String(), "._")
	name = truncateFilename(name)
	if name == "" {
		return FallbackFilename
	}
	return name
}

func isSafeFilenameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '_' || r == '-' || r == '.'
}

func truncateFilename(name string) string {
	if len(name) <= maxFilenameLength {
		return name
	}
	ext := path.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	base := strings.TrimRight(name[:maxFilenameLength-len(ext)], "._")
	return base + ext
}
