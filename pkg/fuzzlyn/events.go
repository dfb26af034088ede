package fuzzlyn

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// EventKind tags the append-only event log entries the dispatcher emits.
type EventKind string

const (
	EventExampleFound  EventKind = "ExampleFound"
	EventTimeout       EventKind = "Timeout"
	EventCompileError  EventKind = "CompileError"
	EventCompilerCrash EventKind = "CompilerCrash"
	EventWorkerCrash   EventKind = "WorkerCrash"
)

type Event struct {
	Kind           EventKind `json:"kind"`
	Seed           uint64    `json:"seed"`
	Time           time.Time `json:"time"`
	Message        string    `json:"message,omitempty"`
	DebugSummary   string    `json:"debugSummary,omitempty"`
	ReleaseSummary string    `json:"releaseSummary,omitempty"`
}

// EventWriter serializes events as JSON lines. Writes are serialized so
// parallel workers can share one log.
type EventWriter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// OpenEventLog opens (or creates) an append-only event log file.
func OpenEventLog(path string) (*EventWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventWriter{w: f, closer: f}, nil
}

func (w *EventWriter) Emit(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(append(data, '\n'))
	return err
}

func (w *EventWriter) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
