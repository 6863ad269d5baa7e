package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/gcb"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"
)

// presubmit validates the experiment requests file and the build plans
// before a change lands. Extra plan files can be passed as positional
// arguments.

func main() {
	requestsPath := flag.String("requests", "service/experiment-requests.yaml", "Path to the experiment requests file")
	fuzzersDir := flag.String("fuzzers-dir", "", "Fuzzer catalog directory, one fuzzer per subdirectory")
	coveragePlan := flag.String("coverage-plan", "docker/gcb/oss-fuzz-coverage.yaml", "Path to the coverage build plan")
	flag.Parse()

	issues := checkRequests(*requestsPath, *fuzzersDir)
	issues += checkCoveragePlan(*coveragePlan)
	for _, plan := range flag.Args() {
		issues += checkPlan(plan)
	}

	if issues > 0 {
		fmt.Fprintf(os.Stderr, "presubmit found %d issue(s)\n", issues)
		os.Exit(1)
	}
	fmt.Println("presubmit passed")
}

func report(path string, err error) int {
	var requestIssues *requests.ValidationError
	if errors.As(err, &requestIssues) {
		for _, issue := range requestIssues.Issues {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, issue)
		}
		return len(requestIssues.Issues)
	}
	var planIssues *gcb.ValidationError
	if errors.As(err, &planIssues) {
		for _, issue := range planIssues.Issues {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, issue)
		}
		return len(planIssues.Issues)
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
	return 1
}

func checkRequests(path, fuzzersDir string) int {
	file, err := requests.Load(path)
	if err != nil {
		return report(path, err)
	}

	var knownFuzzers []string
	if fuzzersDir != "" {
		knownFuzzers, err = experiment.KnownFuzzers(fuzzersDir)
		if err != nil {
			return report(path, err)
		}
	}

	warnRequestOrder(path, file)

	if err := requests.Validate(file, knownFuzzers); err != nil {
		return report(path, err)
	}
	return 0
}

// warnRequestOrder flags entries that break the newest-first convention.
// Ordering is a convention, not a validity rule, so it never counts
// toward the issue total.
func warnRequestOrder(path string, file *requests.File) {
	var prev time.Time
	var prevName string
	for _, req := range file.Requests() {
		if len(req.Experiment) < len(time.DateOnly) {
			continue
		}
		date, err := time.Parse(time.DateOnly, req.Experiment[:len(time.DateOnly)])
		if err != nil {
			continue
		}
		if !prev.IsZero() && date.After(prev) {
			fmt.Fprintf(os.Stderr, "%s: warning: %q is newer than %q above it, keep requests newest first\n",
				path, req.Experiment, prevName)
		}
		prev = date
		prevName = req.Experiment
	}
}

// checkPlan validates a build plan's structure.
func checkPlan(path string) int {
	build, err := gcb.Load(path)
	if err != nil {
		return report(path, err)
	}
	if err := gcb.Validate(build); err != nil {
		return report(path, err)
	}
	return 0
}

// checkCoveragePlan additionally renders the plan with placeholder
// values, so a substitution added or dropped on one side only is
// caught here instead of at dispatch time.
func checkCoveragePlan(path string) int {
	build, err := gcb.Load(path)
	if err != nil {
		return report(path, err)
	}
	if err := gcb.Validate(build); err != nil {
		return report(path, err)
	}

	subs := gcb.CoverageSubstitutions(
		"gcr.io/fuzzbench", "benchmark", "project", "latest",
		"gs://fuzzbench-data/benchmark/coverage-binaries")
	if _, err := build.Expand(subs); err != nil {
		return report(path, err)
	}
	return 0
}
