package gcb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The checked in plan file and the plan the scheduler assembles must
// describe the same build.
func TestCoveragePlanMatchesCheckedInFile(t *testing.T) {
	fromFile, err := Load("../../docker/gcb/oss-fuzz-coverage.yaml")
	require.NoError(t, err)
	require.NoError(t, Validate(fromFile))

	assembled, err := CoveragePlan()
	require.NoError(t, err)

	if diff := cmp.Diff(fromFile.Steps(), assembled.Steps()); diff != "" {
		t.Errorf("steps differ from docker/gcb/oss-fuzz-coverage.yaml (-file +assembled):\n%s", diff)
	}
	assert.Equal(t, fromFile.Images(), assembled.Images())
}

func TestCoveragePlanStepOrder(t *testing.T) {
	plan, err := CoveragePlan()
	require.NoError(t, err)

	var ids []string
	for _, step := range plan.Steps() {
		ids = append(ids, step.ID)
	}
	assert.Equal(t, []string{
		"pull-project-builder",
		"build-coverage-benchmark",
		"push-coverage-benchmark",
		"extract-coverage-binaries",
		"upload-coverage-binaries",
	}, ids)
}
