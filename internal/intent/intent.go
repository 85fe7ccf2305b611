// Package intent scores prompts against weighted keyword tables to find the
// dominant intent of an infrastructure request.
package intent

import (
	"math"
	"sort"
	"strings"

	"github.com/your-org/playbook-assistant/internal/textnorm"
)

// Scoring constants
const (
	// LeadingMatchBonus is added when a keyword starts the prompt
	LeadingMatchBonus = 2.0
	// PartialMatchFactor scales credit for partially matched multi-word keywords
	PartialMatchFactor = 0.5
	// MinMatchedConfidence is the floor once any intent matched
	MinMatchedConfidence = 0.5
	// FallbackConfidence is used when nothing matched
	FallbackConfidence = 0.3
	// MaxSecondary caps the secondary intent list
	MaxSecondary = 3
	// FallbackIntent is the primary intent when no keyword matched
	FallbackIntent = "install"
)

// Definition is one scored candidate: an intent here, a template in the
// template router.
type Definition struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Weight   float64  `json:"weight"`
	Related  []string `json:"related,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Score is the accumulated score of one definition.
type Score struct {
	Name     string   `json:"name"`
	Score    float64  `json:"score"`
	Weight   float64  `json:"weight"`
	Category string   `json:"category,omitempty"`
	Matched  []string `json:"matched,omitempty"`
}

// Intent is the classification result.
type Intent struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary"`
	Confidence float64  `json:"confidence"`
	Scores     []Score  `json:"scores,omitempty"`
}

// Classifier classifies prompts against a fixed definition table.
type Classifier struct {
	definitions []Definition
	fallback    string
}

// NewClassifier creates a classifier over the built-in intent table
func NewClassifier() *Classifier {
	return &Classifier{
		definitions: defaultDefinitions(),
		fallback:    FallbackIntent,
	}
}

// NewClassifierWithDefinitions creates a classifier over a custom table.
func NewClassifierWithDefinitions(defs []Definition, fallback string) *Classifier {
	return &Classifier{definitions: defs, fallback: fallback}
}

// Definitions returns a copy of the classifier's table.
func (c *Classifier) Definitions() []Definition {
	out := make([]Definition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Classify returns the primary intent, up to three secondary intents and a
// confidence for text.
func (c *Classifier) Classify(text string) Intent {
	ranked := Rank(textnorm.NormalizeStrict(text), c.definitions)
	if len(ranked) == 0 {
		return Intent{
			Primary:    c.fallback,
			Secondary:  []string{},
			Confidence: FallbackConfidence,
		}
	}

	top := ranked[0]
	secondary := []string{}
	for _, s := range ranked[1:] {
		if len(secondary) == MaxSecondary {
			break
		}
		secondary = append(secondary, s.Name)
	}

	for _, related := range c.related(top.Name) {
		if len(secondary) >= MaxSecondary {
			break
		}
		if related == top.Name || containsString(secondary, related) {
			continue
		}
		secondary = append(secondary, related)
	}

	return Intent{
		Primary:    top.Name,
		Secondary:  secondary,
		Confidence: Confidence(top.Score, top.Weight),
		Scores:     ranked,
	}
}

// Confidence maps a primary raw score to 0..1: score/(2×weight), capped at 1
// and floored at MinMatchedConfidence.
func Confidence(score, weight float64) float64 {
	if weight <= 0 {
		return MinMatchedConfidence
	}
	return math.Max(MinMatchedConfidence, math.Min(score/(weight*2), 1))
}

// Rank scores every definition against text and returns the non-zero ones in
// descending score order; ties keep table order.
func Rank(text textnorm.Text, defs []Definition) []Score {
	content := text.Content()
	joined := strings.Join(content, " ")
	tokens := make(map[string]bool, len(content))
	for _, tok := range content {
		tokens[tok] = true
	}

	var scores []Score
	for _, def := range defs {
		s := scoreDefinition(joined, tokens, def)
		if s.Score > 0 {
			scores = append(scores, s)
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	return scores
}

func scoreDefinition(joined string, tokens map[string]bool, def Definition) Score {
	s := Score{Name: def.Name, Weight: def.Weight, Category: def.Category}
	if joined == "" {
		return s
	}

	for _, keyword := range def.Keywords {
		kw := textnorm.NormalizeStrict(keyword).ContentString()
		if kw == "" {
			continue
		}

		if strings.Contains(joined, kw) {
			s.Score += def.Weight
			if strings.HasPrefix(joined, kw) {
				s.Score += LeadingMatchBonus
			}
			s.Matched = append(s.Matched, keyword)
			continue
		}

		words := strings.Fields(kw)
		if len(words) < 2 {
			continue
		}
		matched := 0
		for _, w := range words {
			if tokens[w] {
				matched++
			}
		}
		if matched > 0 && matched < len(words) {
			s.Score += float64(matched) / float64(len(words)) * def.Weight * PartialMatchFactor
		}
	}

	return s
}

func (c *Classifier) related(name string) []string {
	for _, def := range c.definitions {
		if def.Name == name {
			return def.Related
		}
	}
	return nil
}

func containsString(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
