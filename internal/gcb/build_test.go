package gcb

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `# Coverage image build dispatched per benchmark.
steps:
  - id: pull-base
    name: gcr.io/cloud-builders/docker
    args: [pull, 'gcr.io/oss-fuzz-base/base-builder']
    wait_for: ['-']
  - id: build
    name: gcr.io/cloud-builders/docker
    args: [build, '--tag', '${_REPO}/base', '.']
    wait_for: [pull-base]
images:
  - '${_REPO}/base'
timeout: 1800s
`

func TestParse(t *testing.T) {
	b, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	steps := b.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "pull-base", steps[0].ID)
	assert.Equal(t, "gcr.io/cloud-builders/docker", steps[0].Name)
	assert.Equal(t, []string{StartImmediately}, steps[0].WaitFor)
	assert.Equal(t, []string{"pull-base"}, steps[1].WaitFor)

	require.Len(t, b.Images(), 1)
	assert.Equal(t, "${_REPO}/base", b.Images()[0])
}

func TestParseErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := Parse(nil)
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("steps is not a list", func(t *testing.T) {
		_, err := Parse([]byte("steps: 12\n"))
		assert.ErrorContains(t, err, "decode build plan")
	})
}

func TestRoundTripPreservesDocument(t *testing.T) {
	b, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	out, err := b.Bytes()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)

	if diff := cmp.Diff(b.Steps(), again.Steps()); diff != "" {
		t.Fatalf("steps changed across round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.Images(), again.Images()); diff != "" {
		t.Fatalf("images changed across round trip (-want +got):\n%s", diff)
	}

	// keys outside the typed view survive untouched
	assert.Contains(t, string(out), "timeout: 1800s")
	assert.Contains(t, string(out), "# Coverage image build dispatched per benchmark.")

	// a second encode of the reparsed document must be stable
	out2, err := again.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))

	// steps stay in declaration order
	pull := strings.Index(string(out), "pull-base")
	build := strings.Index(string(out), "id: build")
	require.Positive(t, pull)
	assert.Greater(t, build, pull)
}

func TestNew(t *testing.T) {
	steps := []Step{
		{ID: "a", Name: "gcr.io/cloud-builders/docker", Args: []string{"pull", "img"}},
		{ID: "b", Name: "gcr.io/cloud-builders/docker", Args: []string{"push", "img"}, WaitFor: []string{"a"}},
	}
	b, err := New(steps, []string{"img"})
	require.NoError(t, err)

	out, err := b.Bytes()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	if diff := cmp.Diff(steps, again.Steps()); diff != "" {
		t.Fatalf("generated plan does not parse back (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"img"}, again.Images())
}
