package experiment

import (
	"fmt"
	"os"
	"sort"
)

// KnownFuzzers lists the fuzzers available for benchmarking, one per
// subdirectory of fuzzersDir.
func KnownFuzzers(fuzzersDir string) ([]string, error) {
	entries, err := os.ReadDir(fuzzersDir)
	if err != nil {
		return nil, fmt.Errorf("read fuzzers dir: %w", err)
	}

	var fuzzers []string
	for _, entry := range entries {
		if entry.IsDir() {
			fuzzers = append(fuzzers, entry.Name())
		}
	}
	sort.Strings(fuzzers)
	return fuzzers, nil
}

// ValidateBenchmarks rejects benchmark lists with repeated entries.
func ValidateBenchmarks(benchmarks []string) error {
	seen := make(map[string]struct{}, len(benchmarks))
	for _, benchmark := range benchmarks {
		if _, dup := seen[benchmark]; dup {
			return fmt.Errorf("benchmark %q is included more than once", benchmark)
		}
		seen[benchmark] = struct{}{}
	}
	return nil
}
