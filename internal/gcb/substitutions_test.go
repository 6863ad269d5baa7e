package gcb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	b := mustParse(t, samplePlan)

	expanded, err := b.Expand(map[string]string{"_REPO": "gcr.io/fuzzbench"})
	require.NoError(t, err)

	steps := expanded.Steps()
	require.Len(t, steps, 2)
	assert.Contains(t, steps[1].Args, "gcr.io/fuzzbench/base")
	assert.Equal(t, []string{"gcr.io/fuzzbench/base"}, expanded.Images())

	// the receiver stays unexpanded
	assert.Equal(t, "${_REPO}/base", b.Images()[0])
}

func TestExpandReportsAllMissing(t *testing.T) {
	input := "steps:\n" +
		"  - id: a\n" +
		"    name: img\n" +
		"    args: ['${_ALPHA}', '${_BETA}', '${_ALPHA}']\n"
	b := mustParse(t, input)

	_, err := b.Expand(nil)
	require.Error(t, err)

	serr, ok := err.(*SubstitutionError)
	require.True(t, ok, "expected a *SubstitutionError, got %T", err)
	assert.Equal(t, []string{"_ALPHA", "_BETA"}, serr.Missing)
	assert.ErrorContains(t, err, "missing substitutions: _ALPHA, _BETA")
}

func TestExpandReportsUnused(t *testing.T) {
	b := mustParse(t, samplePlan)

	_, err := b.Expand(map[string]string{
		"_REPO":   "gcr.io/fuzzbench",
		"_UNUSED": "nope",
	})
	require.Error(t, err)

	serr, ok := err.(*SubstitutionError)
	require.True(t, ok, "expected a *SubstitutionError, got %T", err)
	assert.Empty(t, serr.Missing)
	assert.Equal(t, []string{"_UNUSED"}, serr.Unused)
}

func TestExpandEscapes(t *testing.T) {
	input := "steps:\n" +
		"  - id: a\n" +
		"    name: img\n" +
		"    args: ['echo $$HOME', '${_VAR}']\n"
	b := mustParse(t, input)

	expanded, err := b.Expand(map[string]string{"_VAR": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo $HOME", "x"}, expanded.Steps()[0].Args)
}

func TestExpandLeavesBuiltinsAlone(t *testing.T) {
	input := "steps:\n" +
		"  - id: a\n" +
		"    name: img\n" +
		"    args: ['${PROJECT_ID}']\n"
	b := mustParse(t, input)

	// a reference without the user underscore prefix is the build
	// service's to fill in, never a local error
	expanded, err := b.Expand(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"${PROJECT_ID}"}, expanded.Steps()[0].Args)
}

func TestReferences(t *testing.T) {
	b := mustParse(t, samplePlan)
	assert.Equal(t, []string{"_REPO"}, b.References())

	plan, err := CoveragePlan()
	require.NoError(t, err)
	refs := plan.References()
	assert.ElementsMatch(t, []string{
		SubOSSFuzzProject,
		SubOSSFuzzBuilderHash,
		SubRepo,
		SubBenchmark,
		SubCoverageBinariesDir,
	}, refs)
}

func TestCoveragePlanExpands(t *testing.T) {
	plan, err := CoveragePlan()
	require.NoError(t, err)

	subs := CoverageSubstitutions(
		"gcr.io/fuzzbench",
		"libpng-1.6.38",
		"libpng-proto",
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		"gs://fuzzbench-data/2026-08-24-aflpp/coverage-binaries",
	)
	expanded, err := plan.Expand(subs)
	require.NoError(t, err)
	require.NoError(t, Validate(expanded))

	out, err := expanded.Bytes()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "${_", "all user variables must be resolved")
	assert.Contains(t, string(out), "gcr.io/fuzzbench/coverage/libpng-1.6.38")
	assert.Contains(t, string(out), "gs://fuzzbench-data/2026-08-24-aflpp/coverage-binaries/coverage-build-libpng-1.6.38.tar.gz")

	last := expanded.Steps()[len(expanded.Steps())-1]
	assert.Equal(t, "upload-coverage-binaries", last.ID)
	assert.Equal(t, "gcr.io/cloud-builders/gsutil", last.Name)
}
