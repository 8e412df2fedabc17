package tokenizer

import (
	"fmt"
	"strings"

	"github.com/kljensen/snowball"
)

// StemFunc reduces a lower-cased word to its stem.
type StemFunc func(word string) string

var stemLanguages = map[string]struct{}{
	"english":   {},
	"spanish":   {},
	"french":    {},
	"russian":   {},
	"swedish":   {},
	"norwegian": {},
	"hungarian": {},
}

// NewStemmer returns the snowball stemmer for the named language. An empty
// name or "none" returns nil, meaning terms are indexed unstemmed.
func NewStemmer(name string) (StemFunc, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return nil, nil
	}
	if _, ok := stemLanguages[name]; !ok {
		return nil, fmt.Errorf("unknown stemmer %q", name)
	}
	return func(word string) string {
		stemmed, err := snowball.Stem(word, name, true)
		if err != nil || stemmed == "" {
			return word
		}
		return stemmed
	}, nil
}
