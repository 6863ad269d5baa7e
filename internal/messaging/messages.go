package messaging

// TrialMessage is one fuzzer/benchmark assignment consumed by a runner.
type TrialMessage struct {
	MessageID    string `json:"message_id"`
	Experiment   string `json:"experiment"`
	Fuzzer       string `json:"fuzzer"`
	Benchmark    string `json:"benchmark"`
	TrialID      uint   `json:"trial_id"`
	MaxTotalTime int    `json:"max_total_time"`
	TraceContext string `json:"trace_context,omitempty"`
}

// CoverageBuildMessage asks a builder to execute the rendered build plan
// for one benchmark of an experiment.
type CoverageBuildMessage struct {
	MessageID    string `json:"message_id"`
	Experiment   string `json:"experiment"`
	Benchmark    string `json:"benchmark"`
	Plan         string `json:"plan"`
	TraceContext string `json:"trace_context,omitempty"`
}

// ExperimentMessage announces an experiment lifecycle change to every
// queue bound to the broadcast exchange.
type ExperimentMessage struct {
	MessageID  string   `json:"message_id"`
	Experiment string   `json:"experiment"`
	Fuzzers    []string `json:"fuzzers"`
	Benchmarks []string `json:"benchmarks"`
	Status     string   `json:"status"`
}
