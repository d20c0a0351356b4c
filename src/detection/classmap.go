package detection

import (
	"strings"

	"github.com/bbernhard/scenegraph-playground/src/vocabulary"
)

// MatchStrategy tries to resolve a detector class name to a vocabulary
// object id. ok is false when the strategy has no opinion.
type MatchStrategy interface {
	Match(name string, vocab *vocabulary.Vocabulary) (id int, ok bool)
}

// MatchFunc adapts a plain function to MatchStrategy.
type MatchFunc func(name string, vocab *vocabulary.Vocabulary) (int, bool)

func (f MatchFunc) Match(name string, vocab *vocabulary.Vocabulary) (int, bool) {
	return f(name, vocab)
}

var (
	ExactMatch MatchStrategy = MatchFunc(func(name string, vocab *vocabulary.Vocabulary) (int, bool) {
		if !vocab.Contains(vocabulary.Objects, name) {
			return 0, false
		}
		return vocab.NameToID(vocabulary.Objects, name), true
	})

	// LowercaseMatch looks up the lower-cased class name.
	LowercaseMatch MatchStrategy = MatchFunc(func(name string, vocab *vocabulary.Vocabulary) (int, bool) {
		return ExactMatch.Match(strings.ToLower(name), vocab)
	})

	// UnknownMatch always resolves to <unk>.
	UnknownMatch MatchStrategy = MatchFunc(func(string, *vocabulary.Vocabulary) (int, bool) {
		return 0, true
	})
)

var DefaultStrategies = []MatchStrategy{ExactMatch, LowercaseMatch, UnknownMatch}

// BuildClassMap resolves every detector class once. Classes no strategy
// accepts map to 0.
func BuildClassMap(classes []string, vocab *vocabulary.Vocabulary, strategies []MatchStrategy) []int {
	ids := make([]int, len(classes))
	for i, name := range classes {
		for _, s := range strategies {
			if id, ok := s.Match(name, vocab); ok {
				ids[i] = id
				break
			}
		}
	}
	return ids
}
