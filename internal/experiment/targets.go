package experiment

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// DefaultFuzzTargetName is the binary name OSS-Fuzz builders emit when
	// the benchmark does not pick one explicitly.
	DefaultFuzzTargetName = "fuzz-target"

	fuzzTargetSearchString = "LLVMFuzzerTestOneInput"
)

// FindFuzzTargetBinary locates the fuzz target binary produced by a build
// under searchDir. A named target must sit at exactly that path. Without a
// name the default target path wins, then the first file whose contents
// reference the libFuzzer entry point. Returns "" when nothing matches.
func FindFuzzTargetBinary(searchDir, fuzzTargetName string) (string, error) {
	if fuzzTargetName != "" {
		targetPath := filepath.Join(searchDir, fuzzTargetName)
		if _, err := os.Stat(targetPath); err == nil {
			return targetPath, nil
		}
		return "", nil
	}

	defaultPath := filepath.Join(searchDir, DefaultFuzzTargetName)
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, nil
	}

	var found string
	err := filepath.WalkDir(searchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.Contains(contents, []byte(fuzzTargetSearchString)) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
