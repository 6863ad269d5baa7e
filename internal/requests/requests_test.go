package requests

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRequests = `# Experiments are dispatched newest first.
- experiment: 2026-08-24-aflpp
  fuzzers:
    - aflplusplus
    - libfuzzer
  description: "Weekly comparison run."

- experiment: 2026-08-20-honggfuzz
  fuzzers:
    - honggfuzz
  trials: 10
  type: bug
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleRequests))
	require.NoError(t, err)

	reqs := f.Requests()
	require.Len(t, reqs, 2)
	assert.False(t, f.Paused())

	assert.Equal(t, "2026-08-24-aflpp", reqs[0].Experiment)
	assert.Equal(t, []string{"aflplusplus", "libfuzzer"}, reqs[0].Fuzzers)
	assert.Equal(t, "Weekly comparison run.", reqs[0].Description)

	assert.Equal(t, "2026-08-20-honggfuzz", reqs[1].Experiment)
	assert.Equal(t, 10, reqs[1].Trials)
	assert.Equal(t, "bug", reqs[1].Type)
}

func TestParsePauseService(t *testing.T) {
	input := "- " + PauseServiceEntry + "\n" + sampleRequests
	f, err := Parse([]byte(input))
	require.NoError(t, err)

	assert.True(t, f.Paused())
	assert.Len(t, f.Requests(), 2, "the sentinel must not surface as a request")
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown scalar entry", func(t *testing.T) {
		_, err := Parse([]byte("- STOP_EVERYTHING\n"))
		assert.ErrorContains(t, err, "unexpected scalar")
	})

	t.Run("top level mapping", func(t *testing.T) {
		_, err := Parse([]byte("experiment: 2026-01-01-test\n"))
		assert.ErrorContains(t, err, "expected a top level list")
	})

	t.Run("empty input", func(t *testing.T) {
		f, err := Parse(nil)
		require.NoError(t, err)
		assert.Empty(t, f.Requests())
	})
}

func TestRoundTripPreservesOrder(t *testing.T) {
	f, err := Parse([]byte(sampleRequests))
	require.NoError(t, err)

	out, err := f.Bytes()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)

	if diff := cmp.Diff(f.Requests(), again.Requests()); diff != "" {
		t.Fatalf("requests changed across round trip (-want +got):\n%s", diff)
	}

	// a second encode of the reparsed document must be stable
	out2, err := again.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))

	// comments live in the node tree and survive the encode
	assert.Contains(t, string(out), "# Experiments are dispatched newest first.")
}

func TestInsertPrepends(t *testing.T) {
	f, err := Parse([]byte(sampleRequests))
	require.NoError(t, err)

	req := Request{
		Experiment: "2026-08-25-centipede",
		Fuzzers:    []string{"centipede"},
	}
	require.NoError(t, f.Insert(req))

	reqs := f.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "2026-08-25-centipede", reqs[0].Experiment)
	assert.Equal(t, "2026-08-24-aflpp", reqs[1].Experiment)

	out, err := f.Bytes()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	if diff := cmp.Diff(reqs, again.Requests()); diff != "" {
		t.Fatalf("inserted request lost across round trip (-want +got):\n%s", diff)
	}
}

func TestInsertIntoEmptyFile(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)

	require.NoError(t, f.Insert(Request{
		Experiment: "2026-08-25-fresh",
		Fuzzers:    []string{"libfuzzer"},
	}))

	out, err := f.Bytes()
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, again.Requests(), 1)
	assert.Equal(t, "2026-08-25-fresh", again.Requests()[0].Experiment)
}

func TestValidate(t *testing.T) {
	valid := func() *File {
		f, err := Parse([]byte(sampleRequests))
		require.NoError(t, err)
		return f
	}

	t.Run("valid file", func(t *testing.T) {
		assert.NoError(t, Validate(valid(), nil))
	})

	t.Run("valid against catalog", func(t *testing.T) {
		known := []string{"aflplusplus", "libfuzzer", "honggfuzz"}
		assert.NoError(t, Validate(valid(), known))
	})

	t.Run("unknown fuzzer against catalog", func(t *testing.T) {
		known := []string{"aflplusplus", "libfuzzer"}
		err := Validate(valid(), known)
		assert.ErrorContains(t, err, `fuzzer "honggfuzz" does not exist`)
	})

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate experiment name",
			yaml: "- experiment: 2026-01-01-dup\n  fuzzers: [afl]\n- experiment: 2026-01-01-dup\n  fuzzers: [libfuzzer]\n",
			want: "already requested",
		},
		{
			name: "empty fuzzers list",
			yaml: "- experiment: 2026-01-01-test\n  fuzzers: []\n",
			want: "fuzzers list is empty",
		},
		{
			name: "missing fuzzers key",
			yaml: "- experiment: 2026-01-01-test\n",
			want: "fuzzers list is empty",
		},
		{
			name: "empty fuzzer name",
			yaml: "- experiment: 2026-01-01-test\n  fuzzers: [\"\"]\n",
			want: "empty name",
		},
		{
			name: "uppercase fuzzer name",
			yaml: "- experiment: 2026-01-01-test\n  fuzzers: [AFL]\n",
			want: "lowercase letters, numbers or underscores",
		},
		{
			name: "fuzzer repeated in one entry",
			yaml: "- experiment: 2026-01-01-test\n  fuzzers: [afl, afl]\n",
			want: "included more than once",
		},
		{
			name: "experiment name with invalid chars",
			yaml: "- experiment: 2026-01-01-Test!\n  fuzzers: [afl]\n",
			want: "is invalid",
		},
		{
			name: "experiment name too long",
			yaml: "- experiment: 2026-01-01-really-long-experiment-name\n  fuzzers: [afl]\n",
			want: "is invalid",
		},
		{
			name: "experiment name without date prefix",
			yaml: "- experiment: aflpp-vs-libfuzzer\n  fuzzers: [afl]\n",
			want: "must start with a YYYY-MM-DD date",
		},
		{
			name: "unknown experiment type",
			yaml: "- experiment: 2026-01-01-test\n  fuzzers: [afl]\n  type: speed\n",
			want: "unknown experiment type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			err = Validate(f, nil)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	input := "- experiment: 2026-01-01-dup\n  fuzzers: []\n" +
		"- experiment: 2026-01-01-dup\n  fuzzers: [AFL]\n" +
		"- experiment: no-date\n  fuzzers: [afl]\n"
	f, err := Parse([]byte(input))
	require.NoError(t, err)

	err = Validate(f, nil)
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok, "expected a *ValidationError, got %T", err)
	assert.Len(t, verr.Issues, 4, "every issue should be reported in one pass: %v", verr.Issues)
}
