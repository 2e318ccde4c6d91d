package hub

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Match is one scored chunk from a local search.
type Match struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Chunk splits content on blank lines, dropping empty paragraphs. Content
// without blank lines is split per line.
func Chunk(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 1 && strings.Contains(out[0], "\n") {
		out = out[:0]
		for _, line := range strings.Split(content, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "its": true, "me": true, "my": true,
	"of": true, "on": true, "or": true, "so": true, "than": true, "that": true,
	"the": true, "their": true, "them": true, "they": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "will": true, "with": true, "you": true,
	"your": true,
}

// queryTerms drops stop words unless nothing else is left.
func queryTerms(q string) map[string]struct{} {
	all := terms(q)
	want := make(map[string]struct{}, len(all))
	for _, t := range all {
		if !stopWords[t] {
			want[t] = struct{}{}
		}
	}
	if len(want) == 0 {
		for _, t := range all {
			want[t] = struct{}{}
		}
	}
	return want
}

// Search ranks chunks by the fraction of distinct query terms they contain,
// ties broken by position. Stop words in the query are ignored. Chunks
// sharing no term are omitted.
func Search(chunks []string, q string, limit int) []Match {
	want := queryTerms(q)
	if len(want) == 0 {
		return []Match{}
	}

	matches := []Match{}
	for i, chunk := range chunks {
		seen := make(map[string]struct{})
		for _, t := range terms(chunk) {
			if _, ok := want[t]; ok {
				seen[t] = struct{}{}
			}
		}
		if len(seen) == 0 {
			continue
		}
		matches = append(matches, Match{Index: i, Text: chunk, Score: float64(len(seen)) / float64(len(want))})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// collections holds chunked content per collection name, evicting the
// oldest collection once full.
type collections struct {
	mu    sync.RWMutex
	max   int
	order []string
	data  map[string][]string
}

func newCollections(max int) *collections {
	return &collections{max: max, data: make(map[string][]string)}
}

func (c *collections) Put(name, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[name]; !ok {
		if len(c.order) >= c.max {
			delete(c.data, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, name)
	}
	if looksLikeHTML(content) {
		if text, err := ExtractText(content); err == nil {
			content = text
		}
	}
	c.data[name] = Chunk(content)
}

func (c *collections) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[name]; !ok {
		return
	}
	delete(c.data, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *collections) Get(name string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks, ok := c.data[name]
	return chunks, ok
}
