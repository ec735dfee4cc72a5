package pathsafe

import (
	"path/filepath"
	"strings"
	"unicode"
)

const (
	maxNameLen   = 255
	placeholder  = "_"
	fallbackName = "unnamed"
)

// unsafeNameParts are replaced by the placeholder, in this order.
var unsafeNameParts = []string{"/", `\`, "..", ":", "*", "?", `"`, "<", ">", "|", "\x00"}

// SanitizeFilename turns name into a single safe path element. The result is
// never empty, at most 255 characters long and free of path separators,
// "..", and the characters : * ? " < > | NUL.
func SanitizeFilename(name string) string {
	s := name
	for _, bad := range unsafeNameParts {
		s = strings.ReplaceAll(s, bad, placeholder)
	}
	s = truncateName(trimName(s), maxNameLen)
	if strings.Trim(s, placeholder) == "" {
		return fallbackName
	}
	return s
}

// SanitizeDirname applies the SanitizeFilename rules to a directory name.
func SanitizeDirname(name string) string {
	return SanitizeFilename(name)
}

func trimName(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

// truncateName cuts s to max characters, keeping its extension when the
// stem still has room.
func truncateName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	ext := []rune(filepath.Ext(s))
	if len(ext) > 1 && len(ext) < max {
		if stem := trimName(string(r[:max-len(ext)])); stem != "" {
			return stem + string(ext)
		}
	}
	return trimName(string(r[:max]))
}
