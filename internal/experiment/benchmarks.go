package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BenchmarkConfig is the benchmark.yaml metadata kept next to each
// benchmark's Dockerfiles.
type BenchmarkConfig struct {
	Project            string `yaml:"project"`
	FuzzTarget         string `yaml:"fuzz_target"`
	Commit             string `yaml:"commit"`
	OSSFuzzBuilderHash string `yaml:"oss_fuzz_builder_hash"`
}

// ReadBenchmark loads the metadata for one benchmark. A missing
// benchmarks dir or benchmark.yaml is not an error; the project then
// defaults to the benchmark name and the builder hash to "latest".
func ReadBenchmark(benchmarksDir, benchmark string) (BenchmarkConfig, error) {
	config := BenchmarkConfig{
		Project:            benchmark,
		OSSFuzzBuilderHash: "latest",
	}
	if benchmarksDir == "" {
		return config, nil
	}

	path := filepath.Join(benchmarksDir, benchmark, "benchmark.yaml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return BenchmarkConfig{}, fmt.Errorf("read benchmark config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &config); err != nil {
		return BenchmarkConfig{}, fmt.Errorf("parse benchmark config %s: %w", path, err)
	}
	if config.Project == "" {
		config.Project = benchmark
	}
	if config.OSSFuzzBuilderHash == "" {
		config.OSSFuzzBuilderHash = "latest"
	}
	return config, nil
}
