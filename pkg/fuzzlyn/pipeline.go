package fuzzlyn

import (
	"context"
	"time"
)

// RunOutcomeKind is the error taxonomy of one generate-compile-run cycle.
type RunOutcomeKind int

const (
	OutcomeSuccess RunOutcomeKind = iota
	OutcomeMismatch
	OutcomeCompilerCrash
	OutcomeCompileError
	OutcomeTimeout
	OutcomeCrash
)

func (k RunOutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeMismatch:
		return "ProgramMismatch"
	case OutcomeCompilerCrash:
		return "CompilerCrash"
	case OutcomeCompileError:
		return "CompileError"
	case OutcomeTimeout:
		return "ExecutionTimeout"
	default:
		return "ExecutionCrash"
	}
}

// RunOutcome carries the classification plus whatever evidence came with
// it: the failing side and diagnostics for compile-stage outcomes, the
// pair results for run-stage outcomes.
type RunOutcome struct {
	Kind        RunOutcomeKind
	Side        OptimizationLevel
	Diagnostics []Diagnostic
	CrashErr    error
	Pair        *ProgramPairResults
	Stderr      string
}

// PairRunner abstracts the execution server side of the pipeline.
type PairRunner interface {
	RunPair(ctx context.Context, pair *RunPairRequest, timeout time.Duration) ExecutionResult
}

// Pipeline wires the generator output through the external compiler and
// the execution server.
type Pipeline struct {
	Compiler    Compiler
	Server      PairRunner
	Timeout     time.Duration
	TrackOutput bool
	Now         func() time.Time

	// NewServer, when set, serves every run with a fresh child instead of
	// reusing Server. Reduction uses this to keep crash state isolated.
	NewServer func() (*ExecutionServer, error)
}

// runPair executes one compiled pair on the configured server strategy.
func (pl *Pipeline) runPair(ctx context.Context, debug, release []byte) ExecutionResult {
	srv := pl.Server
	if pl.NewServer != nil {
		s, err := pl.NewServer()
		if err != nil {
			return ExecutionResult{Kind: ExecCrash, Stderr: err.Error()}
		}
		defer s.Shutdown()
		srv = s
	}
	return srv.RunPair(ctx, &RunPairRequest{
		TrackOutput: pl.TrackOutput,
		Debug:       debug,
		Release:     release,
	}, pl.Timeout)
}

func (pl *Pipeline) now() time.Time {
	if pl.Now != nil {
		return pl.Now()
	}
	return time.Now()
}

// CompilePair compiles the printed program at both optimization levels.
// The returned outcome is nil when both sides produced an assembly.
func (pl *Pipeline) CompilePair(p *Program) (debug, release []byte, outcome *RunOutcome) {
	source := Print(p, pl.now())
	for _, level := range []OptimizationLevel{LevelDebug, LevelRelease} {
		res, err := pl.Compiler.Compile(source, CompileOptions{Level: level})
		if err != nil {
			return nil, nil, &RunOutcome{Kind: OutcomeCompilerCrash, Side: level, CrashErr: err}
		}
		if errs := res.ErrorDiagnostics(); len(errs) > 0 {
			return nil, nil, &RunOutcome{Kind: OutcomeCompileError, Side: level, Diagnostics: errs}
		}
		if level == LevelDebug {
			debug = res.Assembly
		} else {
			release = res.Assembly
		}
	}
	return debug, release, nil
}

// Examine runs the full compile-and-execute cycle for one program and
// classifies the result.
func (pl *Pipeline) Examine(ctx context.Context, p *Program) RunOutcome {
	debug, release, failed := pl.CompilePair(p)
	if failed != nil {
		return *failed
	}
	res := pl.runPair(ctx, debug, release)
	switch res.Kind {
	case ExecTimeout:
		return RunOutcome{Kind: OutcomeTimeout}
	case ExecCrash:
		return RunOutcome{Kind: OutcomeCrash, Stderr: res.Stderr}
	}
	if res.Pair.Differs() {
		return RunOutcome{Kind: OutcomeMismatch, Pair: res.Pair}
	}
	return RunOutcome{Kind: OutcomeSuccess, Pair: res.Pair}
}
