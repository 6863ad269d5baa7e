package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/Gh0st0ne/fuzzbench/config"
	"github.com/Gh0st0ne/fuzzbench/internal/experiment"
	"github.com/Gh0st0ne/fuzzbench/internal/filestore"
	"github.com/Gh0st0ne/fuzzbench/internal/requests"
	"github.com/Gh0st0ne/fuzzbench/pkg/logger"

	"go.uber.org/zap"
)

// runexperiment launches a fuzzer benchmarking experiment from a
// checkout: it validates the inputs, materializes the per-experiment
// config, stages the dispatcher input in the experiment filestore and
// starts the dispatcher.

const configDir = "config"

func main() {
	configPath := flag.String("experiment-config", "", "Path to the experiment configuration file")
	experimentName := flag.String("experiment-name", "", "Experiment name")
	benchmarksFlag := flag.String("benchmarks", "", "Comma separated benchmark names")
	fuzzersFlag := flag.String("fuzzers", "", "Comma separated fuzzer names")
	fuzzersDir := flag.String("fuzzers-dir", "fuzzers", "Fuzzer catalog directory")
	rootDir := flag.String("root", ".", "Repository root shipped to the dispatcher")
	allowUncommitted := flag.Bool("allow-uncommitted-changes", false, "Run with local uncommitted changes")
	manual := flag.Bool("manual", false, "Stage resources only, the dispatcher is started elsewhere")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *configPath == "" || *experimentName == "" || *benchmarksFlag == "" || *fuzzersFlag == "" {
		fmt.Fprintln(os.Stderr,
			"runexperiment: -experiment-config, -experiment-name, -benchmarks and -fuzzers are required")
		flag.Usage()
		os.Exit(2)
	}

	log := logger.NewCLILogger(*debug)
	defer log.Sync()

	ctx := context.Background()

	if !*allowUncommitted {
		if err := experiment.CheckNoLocalChanges(ctx, *rootDir); err != nil {
			log.Fatal("Refusing to run", zap.Error(err))
		}
	}
	if err := requests.ValidateExperimentName(*experimentName); err != nil {
		log.Fatal("Invalid experiment name", zap.Error(err))
	}

	benchmarks := splitList(*benchmarksFlag)
	if err := experiment.ValidateBenchmarks(benchmarks); err != nil {
		log.Fatal("Invalid benchmarks", zap.Error(err))
	}
	fuzzers := splitList(*fuzzersFlag)
	if err := validateFuzzers(fuzzers, *fuzzersDir); err != nil {
		log.Fatal("Invalid fuzzers", zap.Error(err))
	}

	cfg, err := experiment.ReadConfig(*configPath)
	if err != nil {
		log.Fatal("Invalid experiment config", zap.Error(err))
	}
	cfg.Experiment = *experimentName
	cfg.Benchmarks = strings.Join(benchmarks, ",")
	cfg.GitHash, err = experiment.GitHash(ctx, *rootDir)
	if err != nil {
		log.Fatal("Failed to resolve git hash", zap.Error(err))
	}

	if _, err := experiment.WriteConfig(cfg, configDir); err != nil {
		log.Fatal("Failed to write experiment config", zap.Error(err))
	}
	if err := experiment.WriteFuzzerConfigs(configDir, fuzzers); err != nil {
		log.Fatal("Failed to write fuzzer configs", zap.Error(err))
	}

	var dispatcher experiment.Dispatcher
	if !*manual {
		dispatcher, err = experiment.NewDispatcher(cfg, log)
		if err != nil {
			log.Fatal("No dispatcher for this config", zap.Error(err))
		}
		if err := dispatcher.CreateAsync(ctx); err != nil {
			log.Fatal("Failed to provision dispatcher", zap.Error(err))
		}
	}

	if err := stageResources(ctx, cfg, *rootDir, log); err != nil {
		log.Fatal("Failed to stage dispatcher input", zap.Error(err))
	}

	if *manual {
		log.Info("Resources staged, start the dispatcher manually",
			zap.String("experiment", cfg.Experiment))
		return
	}

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("Dispatcher failed", zap.Error(err))
	}
	log.Info("Experiment finished", zap.String("experiment", cfg.Experiment))
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validateFuzzers(fuzzers []string, fuzzersDir string) error {
	if len(fuzzers) == 0 {
		return fmt.Errorf("need at least one fuzzer")
	}
	known, err := experiment.KnownFuzzers(fuzzersDir)
	if err != nil {
		return err
	}
	catalog := make(map[string]struct{}, len(known))
	for _, fuzzer := range known {
		catalog[fuzzer] = struct{}{}
	}

	seen := make(map[string]struct{}, len(fuzzers))
	for _, fuzzer := range fuzzers {
		if err := requests.ValidateFuzzerName(fuzzer); err != nil {
			return err
		}
		if _, ok := catalog[fuzzer]; !ok {
			return fmt.Errorf("fuzzer %q does not exist", fuzzer)
		}
		if _, dup := seen[fuzzer]; dup {
			return fmt.Errorf("fuzzer %q is included more than once", fuzzer)
		}
		seen[fuzzer] = struct{}{}
	}
	return nil
}

// stageResources ships the source archive and the config directory to
// the experiment filestore: a plain copy for posix filestores, the
// object store client for everything else.
func stageResources(ctx context.Context, cfg *experiment.PlatformConfig, rootDir string, log *zap.Logger) error {
	if strings.HasPrefix(cfg.ExperimentFilestore, "/") {
		return experiment.StageResourcesLocal(rootDir, cfg.ExperimentFilestore, cfg.Experiment, configDir)
	}

	bucket, prefix, err := splitFilestoreURL(cfg.ExperimentFilestore)
	if err != nil {
		return err
	}
	store, err := filestore.New(config.FilestoreConfig{
		Endpoint:        os.Getenv("FILESTORE_ENDPOINT"),
		AccessKeyID:     os.Getenv("FILESTORE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("FILESTORE_SECRET_ACCESS_KEY"),
		Bucket:          bucket,
		UseSSL:          os.Getenv("FILESTORE_USE_SSL") != "false",
	}, log)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return err
	}

	inputPrefix := path.Join(prefix, cfg.Experiment, "input")

	archive, err := os.CreateTemp("", "src-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create source archive: %w", err)
	}
	defer os.Remove(archive.Name())
	if err := experiment.ArchiveSource(rootDir, archive); err != nil {
		archive.Close()
		return err
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("create source archive: %w", err)
	}

	if err := store.UploadFile(ctx, archive.Name(), path.Join(inputPrefix, experiment.SourceArchiveName)); err != nil {
		return err
	}
	return store.SyncDir(ctx, configDir, path.Join(inputPrefix, "config"))
}

// splitFilestoreURL splits gs://bucket/dir/... into the bucket and the
// object key prefix.
func splitFilestoreURL(filestoreURL string) (string, string, error) {
	rest, ok := strings.CutPrefix(filestoreURL, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("experiment filestore %q is not a gs:// url", filestoreURL)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	return bucket, prefix, nil
}
