// internal/words/words.go
//
// Seed word lists for the registry.
//
// Sources (Seed):
//   1. If a path is given (WORDS_FILE), read one word per line from it.
//   2. Otherwise fall back to the embedded default_words.txt.
//
// Lines are trimmed and upper-cased; blank lines, '#' comments, invalid and
// duplicate words are skipped so the result can be fed straight into Registry.Add.

package words

import (
	"bufio"
	_ "embed"
	"io"
	"os"
	"strings"
)

//go:embed default_words.txt
var embeddedWords string

// Seed loads the seed list from path, or the embedded defaults when path is empty.
func Seed(path string) ([]string, error) {
	if path == "" {
		return readWords(strings.NewReader(embeddedWords))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readWords(f)
}

// readWords keeps valid, first-seen words in file order.
func readWords(rd io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w := Normalize(line)
		if !IsValid(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out, sc.Err()
}
