package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBenchmark(t *testing.T) {
	dir := t.TempDir()
	benchmarkDir := filepath.Join(dir, "libpng-1.6.38")
	require.NoError(t, os.MkdirAll(benchmarkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(benchmarkDir, "benchmark.yaml"), []byte(
		"project: libpng-proto\n"+
			"fuzz_target: libpng_read_fuzzer\n"+
			"commit: a37d4836\n"+
			"oss_fuzz_builder_hash: 0123abcd\n"), 0o644))

	config, err := ReadBenchmark(dir, "libpng-1.6.38")
	require.NoError(t, err)
	assert.Equal(t, BenchmarkConfig{
		Project:            "libpng-proto",
		FuzzTarget:         "libpng_read_fuzzer",
		Commit:             "a37d4836",
		OSSFuzzBuilderHash: "0123abcd",
	}, config)
}

func TestReadBenchmarkDefaults(t *testing.T) {
	// no benchmarks dir configured at all
	config, err := ReadBenchmark("", "zlib")
	require.NoError(t, err)
	assert.Equal(t, "zlib", config.Project)
	assert.Equal(t, "latest", config.OSSFuzzBuilderHash)

	// dir configured but the benchmark has no benchmark.yaml
	config, err = ReadBenchmark(t.TempDir(), "zlib")
	require.NoError(t, err)
	assert.Equal(t, "zlib", config.Project)
	assert.Equal(t, "latest", config.OSSFuzzBuilderHash)
}

func TestReadBenchmarkBackfillsEmptyFields(t *testing.T) {
	dir := t.TempDir()
	benchmarkDir := filepath.Join(dir, "curl")
	require.NoError(t, os.MkdirAll(benchmarkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(benchmarkDir, "benchmark.yaml"),
		[]byte("fuzz_target: curl_fuzzer\n"), 0o644))

	config, err := ReadBenchmark(dir, "curl")
	require.NoError(t, err)
	assert.Equal(t, "curl", config.Project)
	assert.Equal(t, "curl_fuzzer", config.FuzzTarget)
	assert.Equal(t, "latest", config.OSSFuzzBuilderHash)
}

func TestReadBenchmarkRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	benchmarkDir := filepath.Join(dir, "sqlite")
	require.NoError(t, os.MkdirAll(benchmarkDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(benchmarkDir, "benchmark.yaml"),
		[]byte("project: [unclosed\n"), 0o644))

	_, err := ReadBenchmark(dir, "sqlite")
	assert.Error(t, err)
}
