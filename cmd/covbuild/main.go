package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/gcb"
	"github.com/Gh0st0ne/fuzzbench/internal/pipeline"
	"github.com/Gh0st0ne/fuzzbench/pkg/logger"

	"go.uber.org/zap"
)

// covbuild runs one benchmark's coverage build plan against the local
// docker daemon, the way the hosted build service would run it.

func main() {
	planPath := flag.String("plan", "", "Build plan file, the builtin coverage plan when empty")
	benchmark := flag.String("benchmark", "", "Benchmark to build")
	benchmarksDir := flag.String("benchmarks-dir", "", "Benchmark definitions directory")
	project := flag.String("project", "", "OSS-Fuzz project, overrides the benchmark definition")
	builderHash := flag.String("builder-hash", "", "OSS-Fuzz builder image digest, overrides the benchmark definition")
	repo := flag.String("repo", "gcr.io/fuzzbench", "Docker registry the build tags its images under")
	binariesDir := flag.String("binaries-dir", "", "Filestore directory for the coverage binaries archive")
	workspace := flag.String("workspace", ".", "Host directory mounted at /workspace in every step")
	workers := flag.Int("workers", 4, "Concurrent build steps")
	outDir := flag.String("out", "", "Build output directory to check for a fuzz target after the run")
	fuzzTarget := flag.String("fuzz-target", "", "Fuzz target binary name, discovered when empty")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *benchmark == "" {
		fmt.Fprintln(os.Stderr, "covbuild: -benchmark is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logger.NewCLILogger(*debug)
	defer log.Sync()

	ctx := context.Background()

	plan, err := loadPlan(*planPath)
	if err != nil {
		log.Fatal("Failed to load build plan", zap.Error(err))
	}

	benchmarkConfig, err := experiment.ReadBenchmark(*benchmarksDir, *benchmark)
	if err != nil {
		log.Fatal("Failed to read benchmark definition", zap.Error(err))
	}
	if *project != "" {
		benchmarkConfig.Project = *project
	}
	if *builderHash != "" {
		benchmarkConfig.OSSFuzzBuilderHash = *builderHash
	}
	if *binariesDir == "" {
		*binariesDir = fmt.Sprintf("gs://fuzzbench-data/%s/coverage-binaries", *benchmark)
	}

	expanded, err := plan.Expand(gcb.CoverageSubstitutions(
		*repo, *benchmark, benchmarkConfig.Project,
		benchmarkConfig.OSSFuzzBuilderHash, *binariesDir))
	if err != nil {
		log.Fatal("Failed to render build plan", zap.Error(err))
	}

	if err := pipeline.CheckDocker(ctx); err != nil {
		log.Fatal("Docker daemon is not available", zap.Error(err))
	}

	runner := pipeline.NewDockerRunner(log, *workspace)
	executor := pipeline.NewExecutor(runner, log, *workers)
	if err := executor.Run(ctx, expanded); err != nil {
		log.Fatal("Coverage build failed", zap.Error(err))
	}
	log.Info("Coverage build finished", zap.String("benchmark", *benchmark))

	if *outDir == "" {
		return
	}
	target, err := experiment.FindFuzzTargetBinary(*outDir, *fuzzTarget)
	if err != nil {
		log.Fatal("Failed to scan build output", zap.Error(err))
	}
	if target == "" {
		log.Fatal("Build output holds no fuzz target",
			zap.String("out", *outDir),
			zap.String("fuzz_target", *fuzzTarget))
	}
	log.Info("Found fuzz target", zap.String("path", target))
}

func loadPlan(path string) (*gcb.Build, error) {
	if path == "" {
		return gcb.CoveragePlan()
	}
	return gcb.Load(path)
}
