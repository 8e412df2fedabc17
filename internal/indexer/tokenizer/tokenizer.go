// Package tokenizer turns raw field text into weighted index terms: markup
// and punctuation are normalized away, stopwords and short words dropped,
// survivors optionally stemmed, and runs of consecutive terms emitted as
// n-gram phrases.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config is fixed for the lifetime of a Tokenizer.
type Config struct {
	MinWordLength   int
	MaxPhraseLength int
	// PhraseWeights[n-1] is the weight of an n-gram. Missing tiers weigh 1.
	PhraseWeights []float64
	Stemmer       string
	// Stopwords replaces the built-in English list when non-nil.
	Stopwords []string
}

// Token is one distinct term or phrase within a field.
type Token struct {
	Text   string
	Count  int
	Weight float64
}

type Tokenizer struct {
	minLen    int
	maxPhrase int
	weights   []float64
	stem      StemFunc
	stopwords map[string]struct{}
}

func New(cfg Config) (*Tokenizer, error) {
	if cfg.MinWordLength < 1 {
		cfg.MinWordLength = 1
	}
	if cfg.MaxPhraseLength < 1 {
		cfg.MaxPhraseLength = 1
	}
	stem, err := NewStemmer(cfg.Stemmer)
	if err != nil {
		return nil, fmt.Errorf("creating tokenizer: %w", err)
	}
	words := cfg.Stopwords
	if words == nil {
		words = DefaultStopwords()
	}
	stop := make(map[string]struct{}, len(words))
	for _, w := range words {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{
		minLen:    cfg.MinWordLength,
		maxPhrase: cfg.MaxPhraseLength,
		weights:   append([]float64(nil), cfg.PhraseWeights...),
		stem:      stem,
		stopwords: stop,
	}, nil
}

// Tokenize returns the distinct tokens of text keyed by their text. With
// phrases set, every surviving term also anchors the 2..K-grams that start
// at it.
func (t *Tokenizer) Tokenize(text string, phrases bool) map[string]Token {
	out := make(map[string]Token)
	t.tokenizeInto(out, text, phrases)
	return out
}

// TokenizeAll tokenizes each text and sums the counts.
func (t *Tokenizer) TokenizeAll(texts []string, phrases bool) map[string]Token {
	out := make(map[string]Token)
	for _, text := range texts {
		t.tokenizeInto(out, text, phrases)
	}
	return out
}

func (t *Tokenizer) tokenizeInto(out map[string]Token, text string, phrases bool) {
	terms := t.terms(text)
	maxN := 1
	if phrases {
		maxN = t.maxPhrase
	}
	for i := range terms {
		for n := 1; n <= maxN && i+n <= len(terms); n++ {
			key := terms[i]
			if n > 1 {
				key = strings.Join(terms[i:i+n], " ")
			}
			tok, ok := out[key]
			if !ok {
				tok = Token{Text: key, Weight: t.weight(n)}
			}
			tok.Count++
			out[key] = tok
		}
	}
}

// terms returns the surviving, stemmed words of text in order.
func (t *Tokenizer) terms(text string) []string {
	text = strings.ToLower(Normalize(text))
	if text == "" {
		return nil
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})
	terms := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) < t.minLen {
			continue
		}
		if _, stop := t.stopwords[w]; stop {
			continue
		}
		if t.stem != nil {
			w = t.stem(w)
		}
		terms = append(terms, w)
	}
	return terms
}

func (t *Tokenizer) weight(n int) float64 {
	if n-1 < len(t.weights) {
		return t.weights[n-1]
	}
	return 1
}
