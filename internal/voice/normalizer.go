package voice

import (
	"errors"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// ErrNoTokens is returned when text normalizes to an empty symbol sequence.
var ErrNoTokens = errors.New("text produced no symbols")

// Normalizer turns request text into the symbol ids a backend expects.
type Normalizer interface {
	Normalize(text string) ([]int64, error)
}

// languageMarker matches inline language-switch tags such as [ZH] and [JA].
var languageMarker = regexp.MustCompile(`\[[A-Z]{2}\]`)

// SymbolNormalizer maps runes onto a model's symbol table. Runes the table
// does not know are dropped.
type SymbolNormalizer struct {
	index    map[rune]int64
	addBlank bool
}

func NewSymbolNormalizer(symbols []string, addBlank bool) *SymbolNormalizer {
	index := make(map[rune]int64, len(symbols))
	for i, s := range symbols {
		r := []rune(s)
		if len(r) != 1 {
			continue
		}
		if _, ok := index[r[0]]; !ok {
			index[r[0]] = int64(i)
		}
	}
	return &SymbolNormalizer{index: index, addBlank: addBlank}
}

func (n *SymbolNormalizer) Normalize(text string) ([]int64, error) {
	text = languageMarker.ReplaceAllString(norm.NFKC.String(text), "")

	var ids []int64
	for _, r := range text {
		if id, ok := n.index[r]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoTokens
	}
	if n.addBlank {
		ids = intersperse(ids, 0)
	}
	return ids, nil
}

func intersperse(ids []int64, blank int64) []int64 {
	out := make([]int64, 0, len(ids)*2+1)
	out = append(out, blank)
	for _, id := range ids {
		out = append(out, id, blank)
	}
	return out
}
