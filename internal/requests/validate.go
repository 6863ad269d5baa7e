package requests

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// experiment names end up in bucket paths, instance names and
	// database keys, so the charset and length stay deliberately tight
	experimentNameRegex = regexp.MustCompile(`^[a-z0-9-]{0,30}$`)

	// the service only dispatches date-prefixed experiments
	datePrefixRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	fuzzerNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ValidationError aggregates requests file validation issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "requests validation failed"
	}
	return "requests validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// ValidateExperimentName checks that a single experiment name can be
// used in instance and bucket names.
func ValidateExperimentName(name string) error {
	if name == "" {
		return fmt.Errorf("experiment name is empty")
	}
	if !experimentNameRegex.MatchString(name) {
		return fmt.Errorf("experiment name %q is invalid, must match %q",
			name, experimentNameRegex.String())
	}
	return nil
}

// ValidateFuzzerName checks that a fuzzer identifier uses only
// lowercase letters, numbers or underscores.
func ValidateFuzzerName(fuzzer string) error {
	if !fuzzerNameRegex.MatchString(fuzzer) {
		return fmt.Errorf("fuzzer %q may only contain lowercase letters, numbers or underscores", fuzzer)
	}
	return nil
}

// Validate checks the whole file and collects as many issues as it can
// before reporting. knownFuzzers, when non-nil, is the catalog every
// requested fuzzer must belong to.
func Validate(f *File, knownFuzzers []string) error {
	issues := &ValidationError{}

	known := make(map[string]struct{}, len(knownFuzzers))
	for _, fz := range knownFuzzers {
		known[fz] = struct{}{}
	}

	seen := make(map[string]int, len(f.requests))
	for i, req := range f.requests {
		name := req.Experiment
		if err := ValidateExperimentName(name); err != nil {
			issues.Add(fmt.Sprintf("entry %d: %v", i, err))
		} else if !datePrefixRegex.MatchString(name) {
			issues.Add(fmt.Sprintf("entry %d: experiment %q must start with a YYYY-MM-DD date", i, name))
		}

		if prev, dup := seen[name]; dup {
			issues.Add(fmt.Sprintf("entry %d: experiment %q already requested by entry %d", i, name, prev))
		} else if name != "" {
			seen[name] = i
		}

		if len(req.Fuzzers) == 0 {
			issues.Add(fmt.Sprintf("entry %d (%s): fuzzers list is empty", i, name))
		}
		seenFuzzers := make(map[string]struct{}, len(req.Fuzzers))
		for _, fz := range req.Fuzzers {
			if fz == "" {
				issues.Add(fmt.Sprintf("entry %d (%s): fuzzers list holds an empty name", i, name))
				continue
			}
			if err := ValidateFuzzerName(fz); err != nil {
				issues.Add(fmt.Sprintf("entry %d (%s): %v", i, name, err))
				continue
			}
			if _, dup := seenFuzzers[fz]; dup {
				issues.Add(fmt.Sprintf("entry %d (%s): fuzzer %q is included more than once", i, name, fz))
				continue
			}
			seenFuzzers[fz] = struct{}{}
			if knownFuzzers != nil {
				if _, ok := known[fz]; !ok {
					issues.Add(fmt.Sprintf("entry %d (%s): fuzzer %q does not exist", i, name, fz))
				}
			}
		}

		if req.Trials < 0 {
			issues.Add(fmt.Sprintf("entry %d (%s): trials must be positive, got %d", i, name, req.Trials))
		}
		if req.Type != "" && req.Type != "code" && req.Type != "bug" {
			issues.Add(fmt.Sprintf("entry %d (%s): unknown experiment type %q", i, name, req.Type))
		}
	}

	return issues.OrNil()
}
