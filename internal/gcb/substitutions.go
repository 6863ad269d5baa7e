package gcb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// substitutionRef matches the $$ escape and ${VAR} references. Bare
// $VAR references are not used by any of our plans and stay untouched.
var substitutionRef = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SubstitutionError reports every unsatisfied and unused variable of
// an expansion in one pass.
type SubstitutionError struct {
	Missing []string
	Unused  []string
}

func (e *SubstitutionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing substitutions: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unused) > 0 {
		parts = append(parts, "unused substitutions: "+strings.Join(e.Unused, ", "))
	}
	if len(parts) == 0 {
		return "substitution failed"
	}
	return strings.Join(parts, "; ")
}

// Expand replaces ${VAR} references against subs and returns the
// expanded plan, leaving the receiver untouched. User variables (the
// underscore-prefixed ones) must all be satisfied and every supplied
// variable must be referenced, otherwise a SubstitutionError lists the
// full set of offenders. $$ collapses to a literal $.
func (b *Build) Expand(subs map[string]string) (*Build, error) {
	doc := copyNode(b.doc)

	missing := map[string]struct{}{}
	used := map[string]struct{}{}

	walkScalars(doc, func(n *yaml.Node) {
		if !strings.Contains(n.Value, "$") {
			return
		}
		n.Value = substitutionRef.ReplaceAllStringFunc(n.Value, func(match string) string {
			if match == "$$" {
				return "$"
			}
			name := match[2 : len(match)-1]
			if val, ok := subs[name]; ok {
				used[name] = struct{}{}
				return val
			}
			if strings.HasPrefix(name, "_") {
				missing[name] = struct{}{}
			}
			return match
		})
	})

	subErr := &SubstitutionError{}
	for name := range missing {
		subErr.Missing = append(subErr.Missing, name)
	}
	for name := range subs {
		if _, ok := used[name]; !ok {
			subErr.Unused = append(subErr.Unused, name)
		}
	}
	sort.Strings(subErr.Missing)
	sort.Strings(subErr.Unused)
	if len(subErr.Missing) > 0 || len(subErr.Unused) > 0 {
		return nil, subErr
	}

	expanded, err := fromDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("expand build plan: %w", err)
	}
	return expanded, nil
}

// References returns the distinct ${VAR} names the plan refers to, in
// first-appearance order.
func (b *Build) References() []string {
	var refs []string
	seen := map[string]struct{}{}
	walkScalars(b.doc, func(n *yaml.Node) {
		for _, match := range substitutionRef.FindAllString(n.Value, -1) {
			if match == "$$" {
				continue
			}
			name := match[2 : len(match)-1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			refs = append(refs, name)
		}
	})
	return refs
}

func walkScalars(n *yaml.Node, fn func(*yaml.Node)) {
	if n == nil {
		return
	}
	if n.Kind == yaml.ScalarNode {
		fn(n)
		return
	}
	for _, child := range n.Content {
		walkScalars(child, fn)
	}
}
