// Package tagrules loads keyword tagging rules from TOML files.
//
// A rule file looks like:
//
//	# Drop the built-in table instead of extending it.
//	replace = false
//
//	[[rule]]
//	tag = "harvest"
//	keywords = ["harvest", "收获"]
//	min_importance = 0.4
//
// Without replace, file rules extend the built-in table and a file rule
// whose tag matches a built-in rule overrides it.
package tagrules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Errors for rule loading.
var (
	ErrInvalidTOML = errors.New("invalid tag rule file")
	ErrInvalidRule = errors.New("invalid tag rule")
)

type file struct {
	Replace bool          `toml:"replace"`
	Rules   []memory.Rule `toml:"rule"`
}

// Load reads the rule file at path and returns the effective rule table.
// A missing file returns an error satisfying os.IsNotExist.
func Load(path string) ([]memory.Rule, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	var f file
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidTOML, path, undecoded[0].String())
	}

	for i, r := range f.Rules {
		if err := validate(r); err != nil {
			return nil, fmt.Errorf("%s: rule %d: %w", path, i+1, err)
		}
	}

	if f.Replace {
		return f.Rules, nil
	}
	return Merge(memory.DefaultRules(), f.Rules), nil
}

// Merge appends extra to base. An extra rule with the same tag as a base
// rule replaces it in place.
func Merge(base, extra []memory.Rule) []memory.Rule {
	out := make([]memory.Rule, len(base), len(base)+len(extra))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.Tag] = i
	}
	for _, r := range extra {
		if i, ok := index[r.Tag]; ok {
			out[i] = r
			continue
		}
		index[r.Tag] = len(out)
		out = append(out, r)
	}
	return out
}

func validate(r memory.Rule) error {
	if strings.TrimSpace(r.Tag) == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidRule)
	}
	hasKeyword := false
	for _, k := range r.Keywords {
		if strings.TrimSpace(k) != "" {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return fmt.Errorf("%w: %s: at least one keyword is required", ErrInvalidRule, r.Tag)
	}
	if r.MinImportance < 0 || r.MinImportance > 1 {
		return fmt.Errorf("%w: %s: min_importance must be within [0, 1]", ErrInvalidRule, r.Tag)
	}
	return nil
}
