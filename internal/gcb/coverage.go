package gcb

// Substitution variables of the coverage build plan. The orchestrator
// fills them in per benchmark before handing the plan to a runner.
const (
	SubRepo                = "_REPO"
	SubBenchmark           = "_BENCHMARK"
	SubOSSFuzzProject      = "_OSS_FUZZ_PROJECT"
	SubOSSFuzzBuilderHash  = "_OSS_FUZZ_BUILDER_HASH"
	SubCoverageBinariesDir = "_GCS_COVERAGE_BINARIES_DIR"
)

const dockerBuilder = "gcr.io/cloud-builders/docker"

// CoveragePlan produces the build plan for one benchmark's coverage
// measurement image. The plan pulls the pinned OSS-Fuzz project
// builder for layer cache, builds and pushes the coverage image, runs
// it to archive the coverage binaries and uploads the archive to the
// experiment filestore. References stay unexpanded; run Expand with
// CoverageSubstitutions before executing.
func CoveragePlan() (*Build, error) {
	steps := []Step{
		{
			ID:         "pull-project-builder",
			Name:       dockerBuilder,
			Entrypoint: "bash",
			Args: []string{
				"-c",
				"docker pull gcr.io/oss-fuzz/${_OSS_FUZZ_PROJECT}@sha256:${_OSS_FUZZ_BUILDER_HASH} || exit 0",
			},
			WaitFor: []string{StartImmediately},
		},
		{
			ID:   "build-coverage-benchmark",
			Name: dockerBuilder,
			Args: []string{
				"build",
				"--tag",
				"${_REPO}/coverage/${_BENCHMARK}",
				"--cache-from",
				"${_REPO}/coverage/${_BENCHMARK}",
				"--build-arg",
				"parent_image=gcr.io/oss-fuzz/${_OSS_FUZZ_PROJECT}@sha256:${_OSS_FUZZ_BUILDER_HASH}",
				"--file",
				"benchmarks/${_BENCHMARK}/coverage.Dockerfile",
				"benchmarks/${_BENCHMARK}",
			},
			Env:     []string{"DOCKER_BUILDKIT=1"},
			WaitFor: []string{"pull-project-builder"},
		},
		{
			ID:      "push-coverage-benchmark",
			Name:    dockerBuilder,
			Args:    []string{"push", "${_REPO}/coverage/${_BENCHMARK}"},
			WaitFor: []string{"build-coverage-benchmark"},
		},
		{
			ID:         "extract-coverage-binaries",
			Name:       "${_REPO}/coverage/${_BENCHMARK}",
			Entrypoint: "bash",
			Args: []string{
				"-c",
				"tar -czvf /workspace/coverage-build-${_BENCHMARK}.tar.gz /out",
			},
			Env:     []string{"OUT=/out"},
			WaitFor: []string{"build-coverage-benchmark"},
		},
		{
			ID:   "upload-coverage-binaries",
			Name: "gcr.io/cloud-builders/gsutil",
			Args: []string{
				"-m",
				"cp",
				"/workspace/coverage-build-${_BENCHMARK}.tar.gz",
				"${_GCS_COVERAGE_BINARIES_DIR}/coverage-build-${_BENCHMARK}.tar.gz",
			},
			WaitFor: []string{"extract-coverage-binaries"},
		},
	}

	images := []string{"${_REPO}/coverage/${_BENCHMARK}"}

	return New(steps, images)
}

// CoverageSubstitutions binds concrete values to the coverage plan
// variables.
func CoverageSubstitutions(repo, benchmark, project, builderHash, binariesDir string) map[string]string {
	return map[string]string{
		SubRepo:                repo,
		SubBenchmark:           benchmark,
		SubOSSFuzzProject:      project,
		SubOSSFuzzBuilderHash:  builderHash,
		SubCoverageBinariesDir: binariesDir,
	}
}
