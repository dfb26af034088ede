package fuzzlyn

import (
	"context"
	"errors"
	"testing"
	"time"
)

type okCompiler struct{}

func (okCompiler) Compile(source string, opts CompileOptions) (*CompileResult, error) {
	return &CompileResult{Assembly: []byte("asm:" + opts.Level.String())}, nil
}

// crashingCompiler throws on one side only.
type crashingCompiler struct {
	side OptimizationLevel
}

func (c crashingCompiler) Compile(source string, opts CompileOptions) (*CompileResult, error) {
	if opts.Level == c.side {
		return nil, errors.New("internal compiler error")
	}
	return &CompileResult{Assembly: []byte("asm")}, nil
}

type erroringCompiler struct{}

func (erroringCompiler) Compile(source string, opts CompileOptions) (*CompileResult, error) {
	if opts.Level == LevelRelease {
		return &CompileResult{Diagnostics: []Diagnostic{{ID: "CS0266", Severity: "Error", Message: "cannot convert"}}}, nil
	}
	return &CompileResult{Assembly: []byte("asm")}, nil
}

// scriptRunner replays a fixed sequence of execution results; the last
// entry repeats forever.
type scriptRunner struct {
	results []ExecutionResult
	calls   int
}

func (s *scriptRunner) RunPair(ctx context.Context, pair *RunPairRequest, timeout time.Duration) ExecutionResult {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func mismatchPair() *ProgramPairResults {
	return &ProgramPairResults{
		DebugResult:       ProgramResult{Checksum: "246"},
		ReleaseResult:     ProgramResult{Checksum: "4294967286"},
		DebugFirstUnmatch: &ChecksumSite{ID: "c_0", Value: "246"},
	}
}

func agreeingPair() *ProgramPairResults {
	return &ProgramPairResults{
		DebugResult:   ProgramResult{Checksum: "10"},
		ReleaseResult: ProgramResult{Checksum: "10"},
	}
}

// S2: a checksum mismatch between debug and release is reported as
// ProgramMismatch with the first unmatched site preserved.
func TestExamineReportsMismatch(t *testing.T) {
	pl := &Pipeline{
		Compiler: okCompiler{},
		Server: &scriptRunner{results: []ExecutionResult{
			{Kind: ExecSuccess, Pair: mismatchPair()},
		}},
		Timeout: time.Second,
	}
	out := pl.Examine(context.Background(), smallMismatchProgram())
	if out.Kind != OutcomeMismatch {
		t.Fatalf("outcome %v, want mismatch", out.Kind)
	}
	if out.Pair.DebugFirstUnmatch == nil ||
		out.Pair.DebugFirstUnmatch.ID != "c_0" || out.Pair.DebugFirstUnmatch.Value != "246" {
		t.Fatalf("first unmatch site lost: %+v", out.Pair.DebugFirstUnmatch)
	}
}

func TestExamineClassifiesCompileStages(t *testing.T) {
	prog := smallMismatchProgram()
	out := (&Pipeline{Compiler: crashingCompiler{side: LevelRelease}}).Examine(context.Background(), prog)
	if out.Kind != OutcomeCompilerCrash || out.Side != LevelRelease {
		t.Fatalf("got (%v, %v), want compiler crash on release", out.Kind, out.Side)
	}
	out = (&Pipeline{Compiler: erroringCompiler{}}).Examine(context.Background(), prog)
	if out.Kind != OutcomeCompileError || len(out.Diagnostics) == 0 || out.Diagnostics[0].ID != "CS0266" {
		t.Fatalf("got (%v, %v), want compile error CS0266", out.Kind, out.Diagnostics)
	}
}

// S6: a program that times out from the start cannot be reduced.
func TestReductionAbortsOnInitialTimeout(t *testing.T) {
	pl := &Pipeline{
		Compiler: okCompiler{},
		Server:   &scriptRunner{results: []ExecutionResult{{Kind: ExecTimeout}}},
		Timeout:  time.Second,
	}
	_, _, err := BuildReductionPredicate(context.Background(), pl, smallMismatchProgram())
	if !errors.Is(err, ErrInitialTimeout) {
		t.Fatalf("got %v, want ErrInitialTimeout", err)
	}
}

func TestReductionAbortsWithoutDivergence(t *testing.T) {
	pl := &Pipeline{
		Compiler: okCompiler{},
		Server:   &scriptRunner{results: []ExecutionResult{{Kind: ExecSuccess, Pair: agreeingPair()}}},
		Timeout:  time.Second,
	}
	_, _, err := BuildReductionPredicate(context.Background(), pl, smallMismatchProgram())
	if !errors.Is(err, ErrNotInteresting) {
		t.Fatalf("got %v, want ErrNotInteresting", err)
	}
}

// S6: candidates that time out are never accepted by the predicate.
func TestPredicateRejectsTimeoutCandidates(t *testing.T) {
	pl := &Pipeline{
		Compiler: okCompiler{},
		Server: &scriptRunner{results: []ExecutionResult{
			{Kind: ExecSuccess, Pair: mismatchPair()},
			{Kind: ExecTimeout},
		}},
		Timeout: time.Second,
	}
	prog := smallMismatchProgram()
	pred, outcome, err := BuildReductionPredicate(context.Background(), pl, prog)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeMismatch {
		t.Fatalf("initial outcome %v, want mismatch", outcome.Kind)
	}
	if pred(prog) {
		t.Fatal("timed-out candidate accepted")
	}
}

func TestPredicateRequiresSameExceptionDivergence(t *testing.T) {
	orig := &ProgramPairResults{
		DebugResult:   ProgramResult{Checksum: "1"},
		ReleaseResult: ProgramResult{Checksum: "1", ExceptionType: "System.NullReferenceException"},
	}
	other := &ProgramPairResults{
		DebugResult:   ProgramResult{Checksum: "1"},
		ReleaseResult: ProgramResult{Checksum: "1", ExceptionType: "System.IndexOutOfRangeException"},
	}
	pl := &Pipeline{
		Compiler: okCompiler{},
		Server: &scriptRunner{results: []ExecutionResult{
			{Kind: ExecSuccess, Pair: orig},
			{Kind: ExecSuccess, Pair: other},
			{Kind: ExecSuccess, Pair: orig},
		}},
		Timeout: time.Second,
	}
	prog := smallMismatchProgram()
	pred, _, err := BuildReductionPredicate(context.Background(), pl, prog)
	if err != nil {
		t.Fatal(err)
	}
	if pred(prog) {
		t.Fatal("different exception divergence accepted")
	}
	if !pred(prog) {
		t.Fatal("matching exception divergence rejected")
	}
}

func TestPredicateCompilerCrashMode(t *testing.T) {
	pl := &Pipeline{Compiler: crashingCompiler{side: LevelDebug}}
	prog := smallMismatchProgram()
	pred, outcome, err := BuildReductionPredicate(context.Background(), pl, prog)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeCompilerCrash {
		t.Fatalf("outcome %v, want compiler crash", outcome.Kind)
	}
	if !pred(prog) {
		t.Fatal("same crash side should stay interesting")
	}
}

func TestPredicateCompileErrorMode(t *testing.T) {
	pl := &Pipeline{Compiler: erroringCompiler{}}
	prog := smallMismatchProgram()
	pred, outcome, err := BuildReductionPredicate(context.Background(), pl, prog)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeCompileError {
		t.Fatalf("outcome %v, want compile error", outcome.Kind)
	}
	if !pred(prog) {
		t.Fatal("same error id should stay interesting")
	}
}
