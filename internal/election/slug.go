package election

import (
	"strings"

	"github.com/google/uuid"
)

// ShareableSlug builds the voter-registration link slug for an election:
// a URL-friendly form of the title plus the first 8 characters of the id,
// e.g. "city-council-2026-3f8a91b2".
func ShareableSlug(title string, id uuid.UUID) string {
	if title == "" {
		title = "untitled-ballot"
	}
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "untitled-ballot"
	}
	return slug + "-" + id.String()[:8]
}
