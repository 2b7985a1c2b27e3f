package retrieval

import (
	"fmt"
	"strings"
)

// DocumentID is the deterministic key of a stored document.
// Re-indexing the same chunk position overwrites the previous version.
func DocumentID(meetingID string, contentType ContentType, chunkIndex int) string {
	return fmt.Sprintf("%s_%s_%d", meetingID, contentType, chunkIndex)
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

const (
	snippetMaxRunes = 200
	ellipsis        = "..."
)

// Snippet returns a preview of content no longer than 200 runes, marked with "..." when cut.
func Snippet(content string) string {
	c := strings.TrimSpace(content)
	r := []rune(c)
	if len(r) <= snippetMaxRunes {
		return c
	}
	return string(r[:snippetMaxRunes-len(ellipsis)]) + ellipsis
}
