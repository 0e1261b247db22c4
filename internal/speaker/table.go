// Package speaker maps addressed character names to model speaker ids and
// parses the "<imperative><speaker><connective><text>" request grammar.
package speaker

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoAliases         = errors.New("speaker table has no aliases")
	ErrEmptyAlias        = errors.New("speaker alias is empty")
	ErrDuplicateAlias    = errors.New("duplicate speaker alias")
	ErrSpeakerOutOfRange = errors.New("speaker id out of range")
	ErrEmptyMarker       = errors.New("grammar marker is empty")
)

// Alias is one recognised name for a speaker id. Several aliases may share an id.
type Alias struct {
	Name string
	ID   int
}

// Match is a successful parse of a request message.
type Match struct {
	Speaker string
	ID      int
	Text    string
}

// Table is immutable after construction and safe for concurrent use.
type Table struct {
	imperative string
	connective string
	aliases    []Alias
	ids        map[string]int
	re         *regexp.Regexp
}

// NewTable builds a table whose alternation lists aliases longest-first, so
// a name that is a prefix of another never truncates it. Aliases of equal
// length keep their declaration order.
func NewTable(imperative, connective string, aliases []Alias, speakerCount int) (*Table, error) {
	if imperative == "" || connective == "" {
		return nil, ErrEmptyMarker
	}
	if len(aliases) == 0 {
		return nil, ErrNoAliases
	}

	ids := make(map[string]int, len(aliases))
	for _, a := range aliases {
		if a.Name == "" {
			return nil, ErrEmptyAlias
		}
		if _, dup := ids[a.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAlias, a.Name)
		}
		if a.ID < 0 || a.ID >= speakerCount {
			return nil, fmt.Errorf("%w: %q has id %d, model has %d speakers", ErrSpeakerOutOfRange, a.Name, a.ID, speakerCount)
		}
		ids[a.Name] = a.ID
	}

	ordered := slices.Clone(aliases)
	slices.SortStableFunc(ordered, func(a, b Alias) int {
		return utf8.RuneCountInString(b.Name) - utf8.RuneCountInString(a.Name)
	})

	names := make([]string, len(ordered))
	for i, a := range ordered {
		names[i] = regexp.QuoteMeta(a.Name)
	}

	pattern := `(?s)^` + regexp.QuoteMeta(imperative) +
		`(?P<speaker>` + strings.Join(names, "|") + `)` +
		regexp.QuoteMeta(connective) + `(?P<text>.+)$`

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile grammar: %w", err)
	}

	return &Table{
		imperative: imperative,
		connective: connective,
		aliases:    ordered,
		ids:        ids,
		re:         re,
	}, nil
}

// Match parses message as a whole. The trailing text is returned verbatim.
func (t *Table) Match(message string) (Match, bool) {
	sub := t.re.FindStringSubmatch(message)
	if sub == nil {
		return Match{}, false
	}
	name := sub[t.re.SubexpIndex("speaker")]
	return Match{
		Speaker: name,
		ID:      t.ids[name],
		Text:    sub[t.re.SubexpIndex("text")],
	}, true
}

func (t *Table) Imperative() string { return t.imperative }

func (t *Table) Connective() string { return t.connective }

// Aliases returns the aliases in match order.
func (t *Table) Aliases() []Alias {
	return slices.Clone(t.aliases)
}

// Speakers returns one alias per distinct id, ascending by id. The alias
// chosen is the longest one, first declared on ties.
func (t *Table) Speakers() []Alias {
	seen := make(map[int]bool)
	var out []Alias
	for _, a := range t.aliases {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Alias) int { return a.ID - b.ID })
	return out
}

func (t *Table) String() string {
	return t.re.String()
}
