package tokenizer

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var markup = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// deleted characters vanish without leaving a gap.
var deleter = strings.NewReplacer(
	".", "",
	"…", "",
	"€", "",
	"\u00ad", "",
	"\r", "",
	"@", "",
	"!", "",
)

// separators become word boundaries.
var separator = strings.NewReplacer(
	"\u00a0", " ",
	"\u2019", " ",
	"'", " ",
	"\"", " ",
	"\n", " ",
	"\t", " ",
	"(", " ", ")", " ",
	"{", " ", "}", " ",
	"[", " ", "]", " ",
	"%", " ", "$", " ", "#", " ",
	"+", " ", "=", " ", "_", " ", "-", " ",
	"`", " ", ",", " ",
	"<", " ", ">", " ",
	":", " ", "?", " ", ";", " ",
	"&", " ", "/", " ", "\\", " ",
)

// Normalize strips markup from raw, decodes entities, removes or blanks out
// punctuation and collapses whitespace. Case is preserved. Normalize is
// idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := html.UnescapeString(markup.Sanitize(raw))
	s = deleter.Replace(s)
	s = separator.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeAny normalizes v when it is a string and returns "" otherwise.
func NormalizeAny(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}
