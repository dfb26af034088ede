package fuzzlyn

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serverIdleRetire = 2 * time.Minute

// DispatcherConfig configures the parallel fuzzing loop. Workers are
// fully independent pipelines; the only shared state is the append-only
// event log and the counters.
type DispatcherConfig struct {
	HostPath     string
	Compiler     Compiler
	Options      Options
	Parallelism  int           // <= 0: one worker per logical CPU
	NumPrograms  int64         // 0: unbounded
	Duration     time.Duration // 0: unbounded
	Timeout      time.Duration
	OutputSource bool
	OutputDir    string
	Events       *EventWriter
	StatsAddr    string
}

type Dispatcher struct {
	cfg DispatcherConfig
	log *log.Logger

	registry    *prometheus.Registry
	programs    prometheus.Counter
	mismatches  prometheus.Counter
	timeouts    prometheus.Counter
	compileErrs prometheus.Counter

	examined atomic.Int64
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	d := &Dispatcher{
		cfg:      cfg,
		log:      log.New(os.Stderr, "fuzzlyn: ", log.LstdFlags),
		registry: prometheus.NewRegistry(),
	}
	d.programs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fuzzlyn_programs_total", Help: "Programs generated and examined.",
	})
	d.mismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fuzzlyn_mismatches_total", Help: "Behavioral divergences found.",
	})
	d.timeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fuzzlyn_timeouts_total", Help: "Pair executions that timed out.",
	})
	d.compileErrs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fuzzlyn_compile_errors_total", Help: "Generated programs rejected by the compiler.",
	})
	d.registry.MustRegister(d.programs, d.mismatches, d.timeouts, d.compileErrs)
	return d
}

// Run drives P parallel workers until the program budget, the deadline or
// the context ends the session.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.cfg.StatsAddr != "" {
		go d.serveStats()
	}
	if d.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Duration)
		defer cancel()
	}

	workers := d.cfg.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerIdx int) {
			defer wg.Done()
			d.worker(ctx, workerIdx)
		}(i)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) serveStats() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handlers.CompressHandler(
		promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	d.log.Printf("serving stats on http://%s/metrics", d.cfg.StatsAddr)
	if err := http.ListenAndServe(d.cfg.StatsAddr, mux); err != nil {
		d.log.Printf("stats server: %v", err)
	}
}

// worker is one single-threaded pipeline instance with its own seed
// stream derived from the base seed and the worker index.
func (d *Dispatcher) worker(ctx context.Context, workerIdx int) {
	seeds := NewRng(d.cfg.Options.Seed + uint64(workerIdx))

	var server *ExecutionServer
	defer func() {
		if server != nil {
			_ = server.Shutdown()
		}
	}()

	for ctx.Err() == nil {
		if d.cfg.NumPrograms > 0 && d.examined.Add(1) > d.cfg.NumPrograms {
			return
		}
		seed := seeds.NextUint64()
		opts := d.cfg.Options
		opts.Seed = seed

		prog, err := GenerateProgram(&opts)
		if err != nil {
			d.log.Printf("seed %d: generate: %v", seed, err)
			return
		}

		if server != nil && server.IdleFor() > serverIdleRetire {
			_ = server.Shutdown()
			server = nil
		}
		if server == nil {
			server, err = LaunchExecutionServer(d.cfg.HostPath)
			if err != nil {
				d.emit(Event{Kind: EventWorkerCrash, Seed: seed, Message: err.Error()})
				d.log.Printf("worker %d: launch execution server: %v", workerIdx, err)
				return
			}
		}

		pl := &Pipeline{
			Compiler:    d.cfg.Compiler,
			Server:      server,
			Timeout:     d.cfg.Timeout,
			TrackOutput: false,
		}
		outcome := pl.Examine(ctx, prog)
		d.programs.Inc()
		d.report(prog, outcome)
		switch outcome.Kind {
		case OutcomeTimeout, OutcomeCrash:
			// The child is gone either way; a fresh one serves the next seed.
			server.Kill()
			server = nil
		}
	}
}

func (d *Dispatcher) report(prog *Program, outcome RunOutcome) {
	switch outcome.Kind {
	case OutcomeSuccess:
		return
	case OutcomeMismatch:
		d.mismatches.Inc()
		ev := Event{Kind: EventExampleFound, Seed: prog.Seed}
		if outcome.Pair != nil {
			ev.DebugSummary = OutcomeSummary(outcome.Pair.DebugResult)
			ev.ReleaseSummary = OutcomeSummary(outcome.Pair.ReleaseResult)
		}
		d.emit(ev)
		d.saveExample(prog)
		d.log.Printf("seed %d: mismatch found", prog.Seed)
	case OutcomeCompilerCrash:
		d.emit(Event{Kind: EventCompilerCrash, Seed: prog.Seed, Message: fmt.Sprint(outcome.CrashErr)})
		d.saveExample(prog)
		d.log.Printf("seed %d: compiler crash on %s", prog.Seed, outcome.Side)
	case OutcomeCompileError:
		d.compileErrs.Inc()
		msg := ""
		if len(outcome.Diagnostics) > 0 {
			msg = outcome.Diagnostics[0].ID
		}
		d.emit(Event{Kind: EventCompileError, Seed: prog.Seed, Message: msg})
	case OutcomeTimeout:
		d.timeouts.Inc()
		d.emit(Event{Kind: EventTimeout, Seed: prog.Seed})
	case OutcomeCrash:
		d.emit(Event{Kind: EventExampleFound, Seed: prog.Seed, Message: "execution crash"})
		d.saveExample(prog)
		d.log.Printf("seed %d: execution crash", prog.Seed)
	}
}

func (d *Dispatcher) emit(ev Event) {
	if d.cfg.Events == nil {
		return
	}
	if err := d.cfg.Events.Emit(ev); err != nil {
		d.log.Printf("event log: %v", err)
	}
}

// saveExample writes the program source under a seed-derived name, so
// parallel workers never collide on paths.
func (d *Dispatcher) saveExample(prog *Program) {
	if !d.cfg.OutputSource {
		return
	}
	path := filepath.Join(d.cfg.OutputDir, fmt.Sprintf("fuzzlyn-%d.cs", prog.Seed))
	if err := os.WriteFile(path, []byte(Print(prog, time.Now())), 0o644); err != nil {
		d.log.Printf("write example %s: %v", path, err)
	}
}
