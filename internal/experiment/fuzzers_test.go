package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownFuzzers(t *testing.T) {
	dir := t.TempDir()
	for _, fuzzer := range []string{"libfuzzer", "aflplusplus", "honggfuzz"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, fuzzer), 0o755))
	}
	// stray files are not fuzzers
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	fuzzers, err := KnownFuzzers(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"aflplusplus", "honggfuzz", "libfuzzer"}, fuzzers)
}

func TestKnownFuzzersMissingDir(t *testing.T) {
	_, err := KnownFuzzers(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestValidateBenchmarks(t *testing.T) {
	assert.NoError(t, ValidateBenchmarks([]string{"libpng-1.6.38", "zlib_zlib_uncompress_fuzzer"}))

	err := ValidateBenchmarks([]string{"libpng-1.6.38", "libpng-1.6.38"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "included more than once")
}
