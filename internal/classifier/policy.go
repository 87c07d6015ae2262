package classifier

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Policy holds the keyword sets for each category. Matching is case-insensitive
// and sets are evaluated in fixed priority: paid, then free, then promotional.
type Policy struct {
	Paid        []string `yaml:"paid"`
	Free        []string `yaml:"free"`
	Promotional []string `yaml:"promotional"`
}

// DefaultPolicy returns the built-in keyword sets.
func DefaultPolicy() Policy {
	return Policy{
		Paid: []string{
			"invoice", "payment", "receipt", "billing",
			"subscription renewal", "charged", "paid plan",
		},
		Free: []string{
			"free", "trial", "welcome", "newsletter",
			"sign up", "join", "open source",
		},
		Promotional: []string{
			"offer", "discount", "promo", "sale", "upgrade",
			"deal", "special", "limited time", "% off",
		},
	}
}

// LoadPolicy reads a YAML keyword policy from path. Categories omitted from the
// file keep their default keywords.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML keyword policy.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	def := DefaultPolicy()
	if p.Paid == nil {
		p.Paid = def.Paid
	}
	if p.Free == nil {
		p.Free = def.Free
	}
	if p.Promotional == nil {
		p.Promotional = def.Promotional
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that every keyword is non-blank and that no keyword appears
// in more than one set.
func (p Policy) Validate() error {
	seen := make(map[string]string)
	var errs []error

	check := func(set string, keywords []string) {
		for _, kw := range keywords {
			norm := strings.ToLower(strings.TrimSpace(kw))
			if norm == "" {
				errs = append(errs, fmt.Errorf("%s: empty keyword", set))
				continue
			}
			if other, ok := seen[norm]; ok && other != set {
				errs = append(errs, fmt.Errorf("keyword %q appears in both %s and %s", norm, other, set))
				continue
			}
			seen[norm] = set
		}
	}

	check("paid", p.Paid)
	check("free", p.Free)
	check("promotional", p.Promotional)

	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %w", errors.Join(errs...))
	}
	return nil
}
