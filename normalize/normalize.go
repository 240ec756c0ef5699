// Package normalize turns raw log records and user questions into the
// deterministic text forms used for embedding and cache keying.
package normalize

import (
	"strings"
	"unicode"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// CollapseWhitespace replaces every run of whitespace with a single
// space and trims the ends.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate cuts s to at most max runes. Truncation happens before any
// hashing or caching so that a long and its truncated form share a key.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// RecordText derives the embedding input for a log record: the
// service, user_id, level and message fields joined in that order,
// whitespace-collapsed and truncated to maxLen runes. The result is a
// pure function of the record.
func RecordText(rec models.LogRecord, maxLen int) string {
	joined := rec.Service + " " + rec.UserID + " " + rec.Level + " " + rec.Message
	return Truncate(CollapseWhitespace(joined), maxLen)
}

// Question canonicalizes a user question for cache keying and
// embedding. Length limits are enforced by the caller; over-long
// questions are rejected, not truncated.
func Question(q string) string {
	return CollapseWhitespace(q)
}
