package registry

import (
	"fmt"
	"strings"
)

// Selector chooses a handler name for a task description.
type Selector interface {
	// Select returns the handler name to use, or ErrNoHandlerFound when
	// nothing can serve the description.
	Select(description string, available []string) (string, error)
}

// KeywordSelector scores handlers by keyword overlap with the description.
// Registration keywords and the handler name itself both count. Ties break
// toward the lexicographically smaller name so selection is deterministic.
type KeywordSelector struct {
	registry *Registry
	// fallback, when set, is returned for descriptions nothing matches.
	fallback string
}

// NewKeywordSelector creates a selector over the given registry.
func NewKeywordSelector(registry *Registry) *KeywordSelector {
	return &KeywordSelector{registry: registry}
}

// WithFallback sets a handler used when no keyword matches. Without a
// fallback, unmatched descriptions fail with ErrNoHandlerFound.
func (s *KeywordSelector) WithFallback(name string) *KeywordSelector {
	s.fallback = name
	return s
}

// Select implements Selector.
func (s *KeywordSelector) Select(description string, available []string) (string, error) {
	words := tokenize(description)

	best := ""
	bestScore := 0
	for _, name := range available {
		score := 0
		if words[strings.ToLower(name)] {
			score += 2
		}
		meta, err := s.registry.Meta(name)
		if err != nil {
			continue
		}
		for _, kw := range meta.Keywords {
			if words[strings.ToLower(kw)] {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && name < best) {
			best = name
			bestScore = score
		}
	}

	if bestScore == 0 {
		if s.fallback != "" {
			for _, name := range available {
				if name == s.fallback {
					return s.fallback, nil
				}
			}
		}
		return "", fmt.Errorf("%w for description %q", ErrNoHandlerFound, truncate(description, 60))
	}
	return best, nil
}

func tokenize(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		words[strings.Trim(w, ".,;:!?\"'()")] = true
	}
	return words
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
