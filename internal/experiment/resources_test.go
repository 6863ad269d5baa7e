package experiment

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0o644))
	}
}

func readTarNames(t *testing.T, r io.Reader) []string {
	t.Helper()
	gz, err := gzip.NewReader(r)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}

func TestArchiveSourceFiltersPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"fuzzers/libfuzzer/builder.Dockerfile",
		"service/experiment-requests.yaml",
		".git/config",
		"docs/index.md",
		"notes.txt~",
		"internal/gcb/test_data/plan.yaml",
	)

	var buf bytes.Buffer
	require.NoError(t, ArchiveSource(root, &buf))

	names := readTarNames(t, &buf)
	assert.Contains(t, names, "fuzzers/libfuzzer/builder.Dockerfile")
	assert.Contains(t, names, "service/experiment-requests.yaml")
	for _, name := range names {
		assert.NotContains(t, name, ".git")
		assert.NotContains(t, name, "docs/")
		assert.NotContains(t, name, "test_data")
		assert.False(t, len(name) > 0 && name[len(name)-1] == '~', "editor backup %q in archive", name)
	}
}

func TestStageResourcesLocal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "fuzzers/libfuzzer/fuzzer.yaml")

	configDir := t.TempDir()
	writeTree(t, configDir, "experiment.yaml", "fuzzer-configs/libfuzzer")

	filestorePath := t.TempDir()
	require.NoError(t, StageResourcesLocal(root, filestorePath, "2026-08-24-test", configDir))

	inputDir := filepath.Join(filestorePath, "2026-08-24-test", "input")
	assert.FileExists(t, filepath.Join(inputDir, SourceArchiveName))
	assert.FileExists(t, filepath.Join(inputDir, "config", "experiment.yaml"))
	assert.FileExists(t, filepath.Join(inputDir, "config", "fuzzer-configs", "libfuzzer"))

	archive, err := os.Open(filepath.Join(inputDir, SourceArchiveName))
	require.NoError(t, err)
	defer archive.Close()
	assert.Contains(t, readTarNames(t, archive), "fuzzers/libfuzzer/fuzzer.yaml")
}
