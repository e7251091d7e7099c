// Package transcript holds the text side of the relay: glossary correction of
// raw transcriptions and publication of transcript pairs to the text channel.
//
// Raw speech-to-text output is rarely perfect for proper nouns — participant
// names, project jargon and campaign vocabulary are frequently misheard. The
// [GlossaryCorrector] snaps near-miss words onto the configured glossary using
// phonetic matching before the text reaches translation, so the mistake is not
// baked into every downstream language.
package transcript

import (
	"strings"
	"sync"

	"github.com/MrWong99/voxlate/internal/transcript/phonetic"
)

// GlossaryCorrector rewrites transcripts by replacing words (and multi-word
// windows) that phonetically match a glossary term with the term's canonical
// spelling. The term list is hot-swappable via [GlossaryCorrector.SetTerms];
// all methods are safe for concurrent use.
type GlossaryCorrector struct {
	matcher *phonetic.Matcher

	mu       sync.RWMutex
	terms    []string
	maxWords int
}

// NewGlossaryCorrector returns a corrector over the given terms. Matching
// thresholds follow the matcher defaults unless overridden with opts.
func NewGlossaryCorrector(terms []string, opts ...phonetic.Option) *GlossaryCorrector {
	c := &GlossaryCorrector{matcher: phonetic.New(opts...)}
	c.SetTerms(terms)
	return c
}

// SetTerms replaces the glossary. Utterances corrected after the call see the
// new list; in-flight corrections finish against the old one.
func (c *GlossaryCorrector) SetTerms(terms []string) {
	cleaned := make([]string, 0, len(terms))
	maxWords := 0
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		cleaned = append(cleaned, t)
		if n := len(strings.Fields(t)); n > maxWords {
			maxWords = n
		}
	}

	c.mu.Lock()
	c.terms = cleaned
	c.maxWords = maxWords
	c.mu.Unlock()
}

// Terms returns a copy of the current glossary.
func (c *GlossaryCorrector) Terms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.terms...)
}

// Correct returns text with glossary substitutions applied. At each token
// position the longest matching n-gram window wins, so multi-word terms take
// precedence over partial single-word matches. Text without any match is
// returned unchanged.
func (c *GlossaryCorrector) Correct(text string) string {
	c.mu.RLock()
	terms := c.terms
	maxWords := c.maxWords
	c.mu.RUnlock()

	if len(terms) == 0 {
		return text
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}

	output := make([]string, 0, len(tokens))
	i := 0
	for i < len(tokens) {
		maxN := maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, _, ok := c.matcher.Match(window, terms)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(term)...)
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " ")
}
