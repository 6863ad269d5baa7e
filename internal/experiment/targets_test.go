package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTargetFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
	return path
}

func TestFindFuzzTargetBinaryNamed(t *testing.T) {
	dir := t.TempDir()
	want := writeTargetFile(t, dir, "custom-target", "\n\nLLVMFuzzerTestOneInput")

	got, err := FindFuzzTargetBinary(dir, "custom-target")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindFuzzTargetBinaryNamedMissing(t *testing.T) {
	dir := t.TempDir()
	writeTargetFile(t, dir, "empty", "")

	got, err := FindFuzzTargetBinary(dir, "fuzz-target")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindFuzzTargetBinaryDefaultPath(t *testing.T) {
	dir := t.TempDir()
	want := writeTargetFile(t, dir, "fuzz-target", "")

	got, err := FindFuzzTargetBinary(dir, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindFuzzTargetBinaryScansContents(t *testing.T) {
	dir := t.TempDir()
	writeTargetFile(t, dir, "build.log", "nothing to see")
	want := writeTargetFile(t, dir, "custom-target", "\n\nLLVMFuzzerTestOneInput")

	got, err := FindFuzzTargetBinary(dir, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindFuzzTargetBinaryNothingMatches(t *testing.T) {
	dir := t.TempDir()
	writeTargetFile(t, dir, "empty", "")

	got, err := FindFuzzTargetBinary(dir, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
