package services

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMessageLimit = 280

	ellipsis = "..."
	// Room kept for the ellipsis and the blank line before the hashtags.
	truncationReserve = 5
	separator         = "\n\n"
)

// Message is a post before length enforcement. Only Body may be cut.
type Message struct {
	Header   string
	Body     string
	Hashtags string
}

type Formatter struct {
	limit int
}

func NewFormatter(limit int) *Formatter {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &Formatter{limit: limit}
}

func (f *Formatter) Limit() int {
	return f.limit
}

// Format joins the message parts with blank lines. When the result is over
// the limit the body is cut once and marked with an ellipsis; header and
// hashtags are kept whole. Length is counted in characters.
func (f *Formatter) Format(m Message) string {
	base := join(m.Header, m.Body, m.Hashtags)
	if Length(base) <= f.limit {
		return base
	}

	budget := f.limit - Length(m.Hashtags) - truncationReserve
	if m.Header != "" {
		budget -= Length(m.Header) + len(separator)
	}

	body := ""
	if budget > 0 {
		body = strings.TrimRight(truncateRunes(m.Body, budget), " \t\n") + ellipsis
	}

	text := join(m.Header, body, m.Hashtags)
	if over := Length(text) - f.limit; over > 0 && m.Header != "" {
		// Only reachable when header and hashtags alone leave no room.
		header := truncateRunes(m.Header, Length(m.Header)-over)
		text = join(header, body, m.Hashtags)
	}
	return text
}

// Length counts characters the way the platform does for plain text.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, separator)
}
