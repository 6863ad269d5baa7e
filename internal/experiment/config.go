package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlatformConfig is the experiment platform configuration handed to
// the dispatcher. It is distinct from the service's own environment
// config; one file per launched experiment.
type PlatformConfig struct {
	Experiment          string `yaml:"experiment,omitempty"`
	Benchmarks          string `yaml:"benchmarks,omitempty"`
	GitHash             string `yaml:"git_hash,omitempty"`
	Trials              int    `yaml:"trials"`
	MaxTotalTime        int    `yaml:"max_total_time"`
	ExperimentFilestore string `yaml:"experiment_filestore"`
	ReportFilestore     string `yaml:"report_filestore"`
	CloudProject        string `yaml:"cloud_project,omitempty"`
	CloudComputeZone    string `yaml:"cloud_compute_zone,omitempty"`
	LocalExperiment     bool   `yaml:"local_experiment,omitempty"`
}

// ValidationError aggregates platform config validation issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

var (
	configFilestoreParams = []string{"experiment_filestore", "report_filestore"}
	configIntParams       = []string{"trials", "max_total_time"}
	configCloudParams     = []string{"cloud_compute_zone"}
)

// ReadConfig reads a platform config file, finds as many problems as
// possible in one pass and returns the decoded config.
func ReadConfig(path string) (*PlatformConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validateConfigMap(raw); err != nil {
		return nil, fmt.Errorf("config %s is invalid: %w", path, err)
	}

	var config PlatformConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &config, nil
}

func validateConfigMap(raw map[string]any) error {
	issues := &ValidationError{}

	if _, ok := raw["cloud_experiment_bucket"]; ok {
		issues.Add(`"cloud_experiment_bucket" is now "experiment_filestore"`)
	}
	if _, ok := raw["cloud_web_bucket"]; ok {
		issues.Add(`"cloud_web_bucket" is now "report_filestore"`)
	}

	localExperiment, _ := raw["local_experiment"].(bool)

	stringParams := append(append([]string{}, configFilestoreParams...), configCloudParams...)
	required := append(append([]string{}, configIntParams...), configFilestoreParams...)
	if !localExperiment {
		required = append(required, configCloudParams...)
	}

	isString := func(param string) bool {
		for _, p := range stringParams {
			if p == param {
				return true
			}
		}
		return false
	}
	isInt := func(param string) bool {
		for _, p := range configIntParams {
			if p == param {
				return true
			}
		}
		return false
	}
	isFilestore := func(param string) bool {
		for _, p := range configFilestoreParams {
			if p == param {
				return true
			}
		}
		return false
	}

	for _, param := range required {
		value, ok := raw[param]
		if !ok {
			issues.Add(fmt.Sprintf("config does not contain %q", param))
			continue
		}

		if isInt(param) {
			if _, ok := value.(int); !ok {
				issues.Add(fmt.Sprintf("config parameter %q is %v, it must be an int", param, value))
			}
			continue
		}

		str, ok := value.(string)
		if isString(param) && (!ok || str != strings.ToLower(str)) {
			issues.Add(fmt.Sprintf("config parameter %q is %v, it must be a lowercase string", param, value))
			continue
		}

		if !isFilestore(param) {
			continue
		}

		if localExperiment && !strings.HasPrefix(str, "/") {
			issues.Add(fmt.Sprintf("config parameter %q is %q, local experiments only support posix filestores", param, str))
			continue
		}
		if !localExperiment && !strings.HasPrefix(str, "gs://") {
			issues.Add(fmt.Sprintf("config parameter %q is %q, it must start with gs:// when running on the cloud", param, str))
		}
	}

	return issues.OrNil()
}

// WriteConfig materializes the per-experiment config file the
// dispatcher consumes, recreating configDir from scratch.
func WriteConfig(config *PlatformConfig, configDir string) (string, error) {
	if err := os.RemoveAll(configDir); err != nil {
		return "", fmt.Errorf("recreate config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("recreate config dir: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	path := filepath.Join(configDir, "experiment.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// WriteFuzzerConfigs materializes one config file per requested fuzzer
// next to the experiment config, for the dispatcher to enumerate.
func WriteFuzzerConfigs(configDir string, fuzzers []string) error {
	if len(fuzzers) == 0 {
		return fmt.Errorf("need at least one fuzzer")
	}

	fuzzerConfigDir := filepath.Join(configDir, "fuzzer-configs")
	if err := os.MkdirAll(fuzzerConfigDir, 0o755); err != nil {
		return fmt.Errorf("create fuzzer config dir: %w", err)
	}

	for _, fuzzer := range fuzzers {
		data, err := yaml.Marshal(map[string]string{"fuzzer": fuzzer})
		if err != nil {
			return fmt.Errorf("encode fuzzer config: %w", err)
		}
		if err := os.WriteFile(filepath.Join(fuzzerConfigDir, fuzzer), data, 0o644); err != nil {
			return fmt.Errorf("write fuzzer config: %w", err)
		}
	}
	return nil
}
