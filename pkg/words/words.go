// Package words holds the completion and hover metadata of oscript keywords,
// references, builtins and search conditions.
package words

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind classifies a word for completion clients.
type Kind string

const (
	KindKeyword   Kind = "keyword"
	KindReference Kind = "reference"
	KindFunction  Kind = "function"
	KindSearch    Kind = "search"
	KindConstant  Kind = "constant"
	KindOperator  Kind = "operator"
	KindValue     Kind = "value"
)

// Word is one completion entry.
type Word struct {
	Label         string   `yaml:"label" json:"label"`
	Alts          []string `yaml:"alts" json:"-"`
	InsertText    string   `yaml:"insert" json:"insertText"`
	Kind          Kind     `yaml:"kind" json:"kind"`
	Detail        string   `yaml:"detail" json:"detail,omitempty"`
	Documentation string   `yaml:"doc" json:"documentation,omitempty"`
}

// Name is the word as it appears in source, without completion suffixes.
func (w Word) Name() string {
	return strings.TrimRight(w.Label, "[=")
}

//go:embed words.yaml
var wordsYAML []byte

var (
	loadOnce sync.Once
	all      []Word
	byName   map[string]int
	bySearch map[string]int
)

func isSearch(w Word) bool {
	return w.Kind == KindSearch || w.Kind == KindValue
}

func index(m map[string]int, name string, i int) {
	if _, ok := m[name]; !ok {
		m[name] = i
	}
}

func load() {
	var list []Word
	if err := yaml.Unmarshal(wordsYAML, &list); err != nil {
		panic(fmt.Sprintf("words: bad embedded table: %v", err))
	}
	byName = make(map[string]int, len(list))
	bySearch = make(map[string]int)
	for i := range list {
		w := &list[i]
		if w.InsertText == "" {
			w.InsertText = w.Label
		}
		w.Documentation = strings.Trim(w.Documentation, "\n")
		if isSearch(*w) {
			// alts of search conditions only vary the operator
			index(bySearch, w.Name(), i)
			continue
		}
		index(byName, w.Name(), i)
		for _, alt := range w.Alts {
			index(byName, alt, i)
		}
	}
	all = list
}

// All returns every word in table order.
func All() []Word {
	loadOnce.Do(load)
	return append([]Word(nil), all...)
}

// Lookup finds the word for a source token such as "data_feed",
// "trigger.output" or "otherwise". Search conditions are found when no other
// word matches.
func Lookup(token string) (Word, bool) {
	loadOnce.Do(load)
	return lookup(token, byName, bySearch)
}

// LookupSearch is Lookup for a token inside [[ ]] criteria, where search
// conditions take precedence.
func LookupSearch(token string) (Word, bool) {
	loadOnce.Do(load)
	return lookup(token, bySearch, byName)
}

func lookup(token string, first, second map[string]int) (Word, bool) {
	if i, ok := first[token]; ok {
		return all[i], true
	}
	if i, ok := second[token]; ok {
		return all[i], true
	}
	return Word{}, false
}

// Complete returns the words starting with prefix. Inside [[ ]] criteria only
// search conditions and the base value are offered; elsewhere search
// conditions are left out. The result is sorted by label.
func Complete(prefix string, inSearch bool) []Word {
	loadOnce.Do(load)
	var out []Word
	for _, w := range all {
		if inSearch != isSearch(w) {
			continue
		}
		if matches(w, prefix) {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func matches(w Word, prefix string) bool {
	if strings.HasPrefix(w.Label, prefix) {
		return true
	}
	for _, alt := range w.Alts {
		if strings.HasPrefix(alt, prefix) {
			return true
		}
	}
	return false
}
