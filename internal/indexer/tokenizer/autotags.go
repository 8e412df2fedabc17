package tokenizer

import (
	"regexp"
	"strings"
)

// AutotagStripper removes inline autotags such as [story:42 title] so the
// hidden arguments never reach the index.
type AutotagStripper struct {
	re *regexp.Regexp
}

// NewAutotagStripper matches the given tag names case-insensitively. It
// returns nil when tags is empty; a nil stripper leaves text unchanged.
func NewAutotagStripper(tags []string) *AutotagStripper {
	quoted := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return &AutotagStripper{
		re: regexp.MustCompile(`(?i)\[(?:` + strings.Join(quoted, "|") + `):[^\]][^\]]*\]`),
	}
}

func (a *AutotagStripper) Strip(s string) string {
	if a == nil || !strings.Contains(s, "[") {
		return s
	}
	return a.re.ReplaceAllString(s, "")
}
