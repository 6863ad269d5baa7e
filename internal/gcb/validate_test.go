package gcb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, input string) *Build {
	t.Helper()
	b, err := Parse([]byte(input))
	require.NoError(t, err)
	return b
}

func TestValidate(t *testing.T) {
	t.Run("valid plan", func(t *testing.T) {
		assert.NoError(t, Validate(mustParse(t, samplePlan)))
	})

	t.Run("generated coverage plan", func(t *testing.T) {
		b, err := CoveragePlan()
		require.NoError(t, err)
		assert.NoError(t, Validate(b))
	})

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no steps",
			yaml: "images: [img]\n",
			want: "has no steps",
		},
		{
			name: "missing builder image",
			yaml: "steps:\n  - id: a\n    args: [run]\n",
			want: "builder image name is required",
		},
		{
			name: "duplicate step id",
			yaml: "steps:\n  - {id: a, name: img}\n  - {id: a, name: img}\n",
			want: `duplicate step id "a"`,
		},
		{
			name: "forward reference",
			yaml: "steps:\n  - {id: a, name: img, wait_for: [b]}\n  - {id: b, name: img}\n",
			want: `wait_for "b" does not name an earlier step`,
		},
		{
			name: "unknown reference",
			yaml: "steps:\n  - {id: a, name: img}\n  - {id: b, name: img, wait_for: [nope]}\n",
			want: `wait_for "nope" does not name an earlier step`,
		},
		{
			name: "self wait",
			yaml: "steps:\n  - {id: a, name: img, wait_for: [a]}\n",
			want: "waits for itself",
		},
		{
			name: "empty image entry",
			yaml: "steps:\n  - {id: a, name: img}\nimages: ['']\n",
			want: "images[0] is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(mustParse(t, tt.yaml))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidateDashReleasesStep(t *testing.T) {
	b := mustParse(t, "steps:\n  - {id: a, name: img, wait_for: ['-']}\n")
	assert.NoError(t, Validate(b))
}

func TestValidateReportsCycleThroughDuplicateID(t *testing.T) {
	// the duplicate id re-declares "a" after "b" already waited on it,
	// closing a loop in the induced graph
	input := "steps:\n" +
		"  - {id: a, name: img}\n" +
		"  - {id: b, name: img, wait_for: [a]}\n" +
		"  - {id: a, name: img, wait_for: [b]}\n"
	err := Validate(mustParse(t, input))
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok, "expected a *ValidationError, got %T", err)
	assert.Contains(t, verr.Issues, `duplicate step id "a"`)
	assert.Contains(t, verr.Issues, "wait_for graph contains a cycle")
}

func TestValidateCollectsAllIssues(t *testing.T) {
	input := "steps:\n" +
		"  - {id: a, args: [run]}\n" +
		"  - {id: b, name: img, wait_for: [missing]}\n" +
		"images: ['']\n"
	err := Validate(mustParse(t, input))
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok, "expected a *ValidationError, got %T", err)
	assert.Len(t, verr.Issues, 3, "every issue should surface in one pass: %v", verr.Issues)
}
