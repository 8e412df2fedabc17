package tokenizer

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed stopwords/english.txt
var englishStopwords string

// DefaultStopwords returns the built-in English stopword list.
func DefaultStopwords() []string {
	words, _ := readStopwords(strings.NewReader(englishStopwords))
	return words
}

// LoadStopwords reads one word per line from path. Blank lines and lines
// starting with # are ignored.
func LoadStopwords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stopwords %s: %w", path, err)
	}
	defer f.Close()
	words, err := readStopwords(f)
	if err != nil {
		return nil, fmt.Errorf("reading stopwords %s: %w", path, err)
	}
	return words, nil
}

func readStopwords(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, strings.ToLower(w))
	}
	return words, sc.Err()
}
