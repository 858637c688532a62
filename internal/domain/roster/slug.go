package roster

import (
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf16"
)

const (
	imageExt       = ".jpg"
	dottedCapitalI = '\u0130'
)

// TeamSlug lower-cases the team name and collapses every whitespace run into
// a single hyphen. Remaining characters outside [a-z0-9-] become hyphens too
// so the result is always safe as a folder name.
func TeamSlug(name TeamName) string {
	lowered := strings.ToLower(string(name))

	var b strings.Builder
	b.Grow(len(lowered))
	inSpace := false
	for _, r := range lowered {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if isSlugRune(r) || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return b.String()
}

// PlayerSlug lower-cases the name and replaces every UTF-16 code unit
// outside [a-z0-9] with a hyphen, so characters beyond the BMP yield two.
// Dotted capital I lower-cases to "i" plus a combining dot, as in
// "İlkay" -> "i-lkay".
func PlayerSlug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == dottedCapitalI {
			b.WriteString("i-")
			continue
		}
		r = unicode.ToLower(r)
		if isSlugRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteString(strings.Repeat("-", utf16Units(r)))
	}
	return b.String()
}

func utf16Units(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// PlayerFileName is the image file name for a player. Players without a
// display name fall back to their provider id.
func PlayerFileName(name, playerID string) string {
	source := name
	if source == "" {
		source = playerID
	}
	if source == "" {
		source = "player"
	}
	return PlayerSlug(source) + imageExt
}

// PhotoURL builds the public photo path, e.g. /images/arsenal/bukayo-saka.jpg.
func PhotoURL(prefix, teamSlug, fileName string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	return path.Join(prefix, teamSlug, fileName)
}

// ImagePath is where the image is stored below the image root.
func ImagePath(root, teamSlug, fileName string) string {
	return filepath.Join(root, teamSlug, fileName)
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
