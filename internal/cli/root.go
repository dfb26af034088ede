package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Monniasza/Fuzzlyn/pkg/fuzzlyn"
)

const (
	appName    = "fuzzlyn"
	appVersion = "1.6.0"
)

type negBoolBinding struct {
	target *bool
	neg    *bool
}

func addBoolPair(cmd *cobra.Command, bindings *[]negBoolBinding, target *bool, name string, usage string) {
	neg := new(bool)
	cmd.Flags().BoolVar(target, name, *target, usage)
	cmd.Flags().BoolVar(neg, "no-"+name, false, "disable "+name)
	*bindings = append(*bindings, negBoolBinding{target: target, neg: neg})
}

func NewRootCmd() *cobra.Command {
	opts := fuzzlyn.Defaults()
	seedSet := false
	showVersion := false
	hostPath := os.Getenv("FUZZLYN_HOST")
	compilerPath := os.Getenv("FUZZLYN_COMPILER")
	statsAddr := os.Getenv("FUZZLYN_STATS_ADDR")
	outputPath := ""
	outputDir := "."
	eventsPath := ""
	probConfig := ""
	dumpDefaults := ""
	removeFixed := ""
	reduce := false
	reduceChildProcesses := false
	outputSource := false
	numPrograms := int64(0)
	secondsToRun := 0
	parallelism := -1
	timeoutSeconds := 30
	negBindings := make([]negBoolBinding, 0, 4)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Differential fuzzer for a JIT-compiled managed runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if showVersion {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, appVersion)
				return err
			}
			if dumpDefaults != "" {
				return fuzzlyn.Defaults().DumpYAML(dumpDefaults)
			}
			if probConfig != "" {
				var err error
				if opts, err = opts.LoadOptionsFile(probConfig); err != nil {
					return err
				}
			}
			if !seedSet {
				opts.Seed = uint64(time.Now().UnixNano())
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			if compilerPath == "" {
				return fmt.Errorf("--compiler (or FUZZLYN_COMPILER) is required")
			}
			if hostPath == "" {
				return fmt.Errorf("--host (or FUZZLYN_HOST) is required")
			}

			compiler := &fuzzlyn.CommandCompiler{Path: compilerPath}
			timeout := time.Duration(timeoutSeconds) * time.Second
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			switch {
			case removeFixed != "":
				return runRemoveFixed(ctx, cmd, removeFixed, opts, hostPath, compiler, timeout)
			case reduce:
				return runReduce(ctx, cmd, opts, hostPath, compiler, timeout,
					reduceChildProcesses, outputPath)
			default:
				var events *fuzzlyn.EventWriter
				if eventsPath != "" {
					var err error
					if events, err = fuzzlyn.OpenEventLog(eventsPath); err != nil {
						return err
					}
					defer events.Close()
				}
				d := fuzzlyn.NewDispatcher(fuzzlyn.DispatcherConfig{
					HostPath:     hostPath,
					Compiler:     compiler,
					Options:      opts,
					Parallelism:  parallelism,
					NumPrograms:  numPrograms,
					Duration:     time.Duration(secondsToRun) * time.Second,
					Timeout:      timeout,
					OutputSource: outputSource,
					OutputDir:    outputDir,
					Events:       events,
					StatsAddr:    statsAddr,
				})
				return d.Run(ctx)
			}
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.Flags().BoolVarP(&showVersion, "version", "v", false, "print version")
	cmd.Flags().Uint64VarP(&opts.Seed, "seed", "s", 0, "seed for deterministic generation")
	cmd.Flags().StringVar(&hostPath, "host", hostPath, "path to the execution server host")
	cmd.Flags().StringVar(&compilerPath, "compiler", compilerPath, "path to the compile command")
	cmd.Flags().Int64Var(&numPrograms, "num-programs", numPrograms, "stop after examining this many programs")
	cmd.Flags().IntVar(&secondsToRun, "seconds-to-run", secondsToRun, "stop after this many seconds")
	cmd.Flags().IntVar(&parallelism, "parallelism", parallelism, "parallel workers; -1 uses all logical CPUs")
	cmd.Flags().BoolVar(&reduce, "reduce", reduce, "reduce the program for --seed instead of fuzzing")
	cmd.Flags().BoolVar(&reduceChildProcesses, "reduce-use-child-processes", reduceChildProcesses,
		"run every reduction candidate in a fresh child process")
	cmd.Flags().BoolVar(&outputSource, "output-source", outputSource, "write found example sources to disk")
	cmd.Flags().StringVarP(&outputPath, "output", "o", outputPath, "write reduced source to file")
	cmd.Flags().StringVar(&outputDir, "output-dir", outputDir, "directory for found example sources")
	cmd.Flags().StringVar(&eventsPath, "output-events-to", eventsPath, "append JSON events to file")
	cmd.Flags().StringVar(&removeFixed, "remove-fixed", removeFixed, "re-run saved examples in dir, deleting fixed ones")
	cmd.Flags().StringVar(&probConfig, "prob-config", probConfig, "YAML probability configuration file")
	cmd.Flags().StringVar(&dumpDefaults, "dump-default-probabilities", dumpDefaults, "dump default probabilities to file")
	cmd.Flags().StringVar(&statsAddr, "stats-addr", statsAddr, "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout", timeoutSeconds, "pair execution timeout in seconds")
	addBoolPair(cmd, &negBindings, &opts.Checksumming, "checksum", "checksum instrumentation")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		seedSet = cmd.Flags().Changed("seed")
		for _, b := range negBindings {
			if *b.neg {
				*b.target = false
			}
		}
	}

	return cmd
}

func runReduce(ctx context.Context, cmd *cobra.Command, opts fuzzlyn.Options,
	hostPath string, compiler fuzzlyn.Compiler, timeout time.Duration,
	childProcesses bool, outputPath string) error {

	prog, err := fuzzlyn.GenerateProgram(&opts)
	if err != nil {
		return err
	}
	server, err := fuzzlyn.LaunchExecutionServer(hostPath)
	if err != nil {
		return err
	}
	defer server.Shutdown()

	pl := &fuzzlyn.Pipeline{
		Compiler:    compiler,
		Server:      server,
		Timeout:     timeout,
		TrackOutput: true,
	}
	if childProcesses {
		pl.NewServer = func() (*fuzzlyn.ExecutionServer, error) {
			return fuzzlyn.LaunchExecutionServer(hostPath)
		}
	}

	pred, outcome, err := fuzzlyn.BuildReductionPredicate(ctx, pl, prog)
	if err != nil {
		return err
	}
	red := fuzzlyn.NewReducer(prog, pred)
	start := time.Now()
	if _, err := red.Reduce(); err != nil {
		return err
	}
	debugSummary, releaseSummary := outcomeSummaries(outcome)
	final := red.Finalize(time.Since(start), debugSummary, releaseSummary)

	source := fuzzlyn.Print(final, time.Now())
	if outputPath == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), source)
		return err
	}
	return os.WriteFile(outputPath, []byte(source), 0o644)
}

func outcomeSummaries(outcome *fuzzlyn.RunOutcome) (string, string) {
	switch outcome.Kind {
	case fuzzlyn.OutcomeMismatch:
		return fuzzlyn.OutcomeSummary(outcome.Pair.DebugResult),
			fuzzlyn.OutcomeSummary(outcome.Pair.ReleaseResult)
	case fuzzlyn.OutcomeCompilerCrash:
		crash := fmt.Sprintf("Compiler crash (%v)", outcome.CrashErr)
		if outcome.Side == fuzzlyn.LevelDebug {
			return crash, "Compiles"
		}
		return "Compiles", crash
	case fuzzlyn.OutcomeCompileError:
		msg := "Compile error"
		if len(outcome.Diagnostics) > 0 {
			msg = "Compile error " + outcome.Diagnostics[0].ID
		}
		if outcome.Side == fuzzlyn.LevelDebug {
			return msg, "Compiles"
		}
		return "Compiles", msg
	default:
		return "Runtime crash", "Runtime crash"
	}
}

// runRemoveFixed re-examines saved examples by their recorded seed and
// deletes the files whose divergence no longer reproduces.
func runRemoveFixed(ctx context.Context, cmd *cobra.Command, dir string,
	opts fuzzlyn.Options, hostPath string, compiler fuzzlyn.Compiler,
	timeout time.Duration) error {

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	server, err := fuzzlyn.LaunchExecutionServer(hostPath)
	if err != nil {
		return err
	}
	defer server.Shutdown()
	pl := &fuzzlyn.Pipeline{Compiler: compiler, Server: server, Timeout: timeout}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cs") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		seed, ok := readSeedHeader(path)
		if !ok {
			continue
		}
		exOpts := opts
		exOpts.Seed = seed
		prog, err := fuzzlyn.GenerateProgram(&exOpts)
		if err != nil {
			return err
		}
		outcome := pl.Examine(ctx, prog)
		if outcome.Kind == fuzzlyn.OutcomeSuccess {
			fmt.Fprintf(cmd.OutOrStdout(), "fixed: %s\n", entry.Name())
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func readSeedHeader(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for i := 0; sc.Scan() && i < 10; i++ {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "// Seed:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "// Seed:"))
			seed, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return 0, false
			}
			return seed, true
		}
	}
	return 0, false
}
