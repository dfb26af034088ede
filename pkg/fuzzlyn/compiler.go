package fuzzlyn

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	json "github.com/goccy/go-json"
)

// OptimizationLevel selects one side of the differential pair.
type OptimizationLevel int

const (
	LevelDebug OptimizationLevel = iota
	LevelRelease
)

func (l OptimizationLevel) String() string {
	if l == LevelRelease {
		return "Release"
	}
	return "Debug"
}

type CompileOptions struct {
	Level OptimizationLevel
}

type Diagnostic struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type CompileResult struct {
	Assembly    []byte
	Diagnostics []Diagnostic
}

// ErrorDiagnostics filters the diagnostics of severity error.
func (r *CompileResult) ErrorDiagnostics() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if strings.EqualFold(d.Severity, "error") {
			out = append(out, d)
		}
	}
	return out
}

// Compiler is the host-language compiler front-end, consumed as an
// external collaborator. A returned error means the compiler itself
// crashed; compile errors come back as diagnostics.
type Compiler interface {
	Compile(source string, opts CompileOptions) (*CompileResult, error)
}

// CommandCompiler adapts an external compile command: source on stdin,
// assembly bytes on stdout, diagnostics as JSON lines on stderr.
type CommandCompiler struct {
	Path string
	Args []string
}

func (c *CommandCompiler) Compile(source string, opts CompileOptions) (*CompileResult, error) {
	level := "--debug"
	if opts.Level == LevelRelease {
		level = "--release"
	}
	cmd := exec.Command(c.Path, append(append([]string(nil), c.Args...), level)...)
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CompileResult{Assembly: stdout.Bytes()}
	for _, line := range bytes.Split(stderr.Bytes(), []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var d Diagnostic
		if jerr := json.Unmarshal(line, &d); jerr == nil && d.ID != "" {
			result.Diagnostics = append(result.Diagnostics, d)
		}
	}
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			// Exit 1 is the well-formed "diagnostics produced" path.
			return result, nil
		}
		return nil, fmt.Errorf("compiler %s: %w", c.Path, err)
	}
	return result, nil
}
