// Package scoring implements the qualification scoring engine for LeadLine.
//
// Scoring is a pure function over the inbound message text: each keyword
// category contributes a flat bonus when any of its keywords appears, and
// the delta is the sum of triggered bonuses. The categories and keywords
// are policy, not code; the evaluation algorithm is fixed.
package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Category is one keyword group in a scoring policy. The bonus applies at
// most once per message regardless of how many keywords match.
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Bonus    int      `json:"bonus"`
}

// Policy is an ordered list of categories evaluated independently.
type Policy []Category

// DefaultPolicy returns the built-in scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		{
			Name:     "positive_intent",
			Keywords: []string{"interested", "want", "buy", "budget", "yes", "ready"},
			Bonus:    10,
		},
		{
			Name:     "urgency",
			Keywords: []string{"urgent", "asap", "today", "now", "immediately"},
			Bonus:    15,
		},
		{
			Name:     "qualifying_question",
			Keywords: []string{"timeline", "cost", "price", "how much", "when can"},
			Bonus:    5,
		},
	}
}

// LoadPolicy reads a scoring policy from a JSON file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring policy %s: %w", path, err)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse scoring policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that every category carries a name, at least one keyword,
// and a non-negative bonus.
func (p Policy) Validate() error {
	for i, c := range p {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", c.Name)
		}
		if c.Bonus < 0 {
			return fmt.Errorf("category %q has negative bonus %d", c.Name, c.Bonus)
		}
	}
	return nil
}

// Score evaluates the message text against the policy and returns the total
// delta. Matching is case-insensitive substring; a category triggers at most
// once per message.
func (p Policy) Score(text string) int {
	lowered := strings.ToLower(text)
	total := 0
	for _, c := range p {
		for _, kw := range c.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				total += c.Bonus
				break
			}
		}
	}
	return total
}
