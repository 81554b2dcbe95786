// Package categorize assigns spending categories by ordered keyword rules.
package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/statement-graph/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps a category to the keywords that select it.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type ruleFile struct {
	Categories []Rule `yaml:"categories"`
}

// Categorizer is safe for concurrent use; it never changes after New.
type Categorizer struct {
	rules []Rule
}

// LoadRules decodes and validates a YAML rule table.
func LoadRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("LoadRules: decode yaml: %w", err)
	}
	if err := validate(f.Categories); err != nil {
		return nil, fmt.Errorf("LoadRules: %w", err)
	}
	return f.Categories, nil
}

// LoadFile reads a rule table from disk.
func LoadFile(path string) (*Categorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: read %s: %w", path, err)
	}
	rules, err := LoadRules(data)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// Default returns the categorizer built from the embedded rule table.
func Default() *Categorizer {
	rules, err := LoadRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("categorize: embedded rules are invalid: %v", err))
	}
	c, err := New(rules)
	if err != nil {
		panic(fmt.Sprintf("categorize: embedded rules are invalid: %v", err))
	}
	return c
}

// New builds a Categorizer. Rule order is preserved and decides ties.
func New(rules []Rule) (*Categorizer, error) {
	if err := validate(rules); err != nil {
		return nil, err
	}
	c := &Categorizer{rules: make([]Rule, len(rules))}
	for i, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
		}
		c.rules[i] = Rule{Name: strings.TrimSpace(r.Name), Keywords: kws}
	}
	return c, nil
}

func validate(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("rule table is empty")
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			return fmt.Errorf("rule %d has no name", i)
		case strings.EqualFold(name, domain.CategoryOther):
			return fmt.Errorf("rule %d: %q is reserved for unmatched descriptions", i, domain.CategoryOther)
		case seen[name]:
			return fmt.Errorf("rule %d: duplicate category %q", i, name)
		case len(r.Keywords) == 0:
			return fmt.Errorf("category %q has no keywords", name)
		}
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("category %q has an empty keyword", name)
			}
		}
		seen[name] = true
	}
	return nil
}

// Categorize returns the first category, in table order, with a keyword
// contained in the lowercased description, or "other".
func (c *Categorizer) Categorize(description string) string {
	desc := strings.ToLower(description)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(desc, kw) {
				return r.Name
			}
		}
	}
	return domain.CategoryOther
}

// CategorizeAll returns a copy of txs with Category set on every record.
func (c *Categorizer) CategorizeAll(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		tx.Category = c.Categorize(tx.Description)
		out[i] = tx
	}
	return out
}

// Categories lists every label Categorize can return, in table order
// followed by "other".
func (c *Categorizer) Categories() []string {
	names := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		names = append(names, r.Name)
	}
	return append(names, domain.CategoryOther)
}
