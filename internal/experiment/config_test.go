package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigLocal(t *testing.T) {
	path := writeConfigFile(t, `
trials: 20
max_total_time: 82800
experiment_filestore: /tmp/experiment-data
report_filestore: /tmp/report-data
local_experiment: true
`)
	config, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, config.Trials)
	assert.Equal(t, 82800, config.MaxTotalTime)
	assert.Equal(t, "/tmp/experiment-data", config.ExperimentFilestore)
	assert.True(t, config.LocalExperiment)
}

func TestReadConfigCloud(t *testing.T) {
	path := writeConfigFile(t, `
trials: 10
max_total_time: 3600
experiment_filestore: gs://fuzzbench-data
report_filestore: gs://fuzzbench-reports
cloud_compute_zone: us-central1-a
cloud_project: fuzzbench
`)
	config, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "us-central1-a", config.CloudComputeZone)
	assert.False(t, config.LocalExperiment)
}

func TestReadConfigCollectsAllIssues(t *testing.T) {
	path := writeConfigFile(t, `{}`)
	_, err := ReadConfig(path)
	require.Error(t, err)

	// trials, max_total_time, both filestores and the compute zone are
	// all reported in one pass
	assert.ErrorContains(t, err, `config does not contain "trials"`)
	assert.ErrorContains(t, err, `config does not contain "max_total_time"`)
	assert.ErrorContains(t, err, `config does not contain "experiment_filestore"`)
	assert.ErrorContains(t, err, `config does not contain "report_filestore"`)
	assert.ErrorContains(t, err, `config does not contain "cloud_compute_zone"`)
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "trials not an int",
			yaml: "trials: twenty\nmax_total_time: 3600\nexperiment_filestore: /d\nreport_filestore: /r\nlocal_experiment: true\n",
			want: "must be an int",
		},
		{
			name: "uppercase filestore",
			yaml: "trials: 1\nmax_total_time: 3600\nexperiment_filestore: gs://Data\nreport_filestore: gs://reports\ncloud_compute_zone: us-central1-a\n",
			want: "must be a lowercase string",
		},
		{
			name: "cloud filestore without scheme",
			yaml: "trials: 1\nmax_total_time: 3600\nexperiment_filestore: data\nreport_filestore: gs://reports\ncloud_compute_zone: us-central1-a\n",
			want: "must start with gs://",
		},
		{
			name: "local filestore not absolute",
			yaml: "trials: 1\nmax_total_time: 3600\nexperiment_filestore: data\nreport_filestore: /r\nlocal_experiment: true\n",
			want: "posix filestores",
		},
		{
			name: "renamed legacy key",
			yaml: "cloud_experiment_bucket: gs://data\ntrials: 1\nmax_total_time: 3600\nexperiment_filestore: gs://data\nreport_filestore: gs://reports\ncloud_compute_zone: us-central1-a\n",
			want: `"cloud_experiment_bucket" is now "experiment_filestore"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := ReadConfig(path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	config := &PlatformConfig{
		Experiment:          "2026-08-24-aflpp",
		Benchmarks:          "libpng-1.6.38,zlib_zlib_uncompress_fuzzer",
		GitHash:             "deadbeef",
		Trials:              20,
		MaxTotalTime:        82800,
		ExperimentFilestore: "/tmp/experiment-data",
		ReportFilestore:     "/tmp/report-data",
		LocalExperiment:     true,
	}

	path, err := WriteConfig(config, configDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(configDir, "experiment.yaml"), path)

	loaded, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestNewDispatcherRejectsCloud(t *testing.T) {
	_, err := NewDispatcher(&PlatformConfig{LocalExperiment: false}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "local_experiment")
}

func TestWriteFuzzerConfigs(t *testing.T) {
	configDir := t.TempDir()
	require.NoError(t, WriteFuzzerConfigs(configDir, []string{"libfuzzer", "aflplusplus"}))

	data, err := os.ReadFile(filepath.Join(configDir, "fuzzer-configs", "libfuzzer"))
	require.NoError(t, err)
	assert.Equal(t, "fuzzer: libfuzzer\n", string(data))
	assert.FileExists(t, filepath.Join(configDir, "fuzzer-configs", "aflplusplus"))

	assert.Error(t, WriteFuzzerConfigs(configDir, nil))
}
