package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `<p>Site search keeps an inverted index of every story, page and
        comment. Each item is normalized, split into terms and indexed together
        with the short phrases it contains, so that a query for a headline finds
        the story that carries it even when the words are common on their own.</p>`,
	"long": strings.Repeat(`Content indexing pipelines combine markup stripping,
        stopword removal and stemming to normalize text into searchable terms.
        Phrases of two or three consecutive terms are weighted above single words
        so exact matches float to the top. `, 20),
}

func benchTokenizer(b *testing.B) *Tokenizer {
	tk, err := New(Config{MinWordLength: 3, MaxPhraseLength: 3, PhraseWeights: []float64{1, 1.5, 2}, Stemmer: "english"})
	if err != nil {
		b.Fatal(err)
	}
	return tk
}

func BenchmarkTokenize(b *testing.B) {
	tk := benchTokenizer(b)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tk.Tokenize(text, true)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tk := benchTokenizer(b)
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tk.Tokenize(text, true)
		}
	})
}

func BenchmarkNormalizeVaryingSize(b *testing.B) {
	baseWord := "<b>content</b> search &amp; indexing, platform! "
	for _, size := range []int{10, 100, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Normalize(text)
			}
		})
	}
}
