package fuzzlyn

import (
	"context"
	"testing"
	"time"
)

func TestPairDiffers(t *testing.T) {
	cases := []struct {
		pair *ProgramPairResults
		want bool
	}{
		{agreeingPair(), false},
		{mismatchPair(), true},
		{&ProgramPairResults{
			DebugResult:   ProgramResult{Checksum: "1"},
			ReleaseResult: ProgramResult{Checksum: "1", ExceptionType: "System.Exception"},
		}, true},
	}
	for i, tc := range cases {
		if got := tc.pair.Differs(); got != tc.want {
			t.Errorf("case %d: Differs() = %v, want %v", i, got, tc.want)
		}
	}
}

func TestOutcomeSummary(t *testing.T) {
	got := OutcomeSummary(ProgramResult{ExceptionType: "System.NullReferenceException"})
	if got != "Throws 'System.NullReferenceException'" {
		t.Fatalf("exception summary: %q", got)
	}
	got = OutcomeSummary(ProgramResult{Checksum: "246"})
	if got != "Checksum 246" {
		t.Fatalf("checksum summary: %q", got)
	}
}

func TestRunPairTimeoutKillsChild(t *testing.T) {
	srv, err := LaunchExecutionServer("sleep", "60")
	if err != nil {
		t.Skipf("cannot launch sleep: %v", err)
	}
	start := time.Now()
	res := srv.RunPair(context.Background(), &RunPairRequest{}, 200*time.Millisecond)
	if res.Kind != ExecTimeout {
		t.Fatalf("result %v, want timeout", res.Kind)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout did not fire promptly")
	}
}

func TestRunPairGarbageResponseIsCrash(t *testing.T) {
	// cat echoes the request line, which is not a valid response.
	srv, err := LaunchExecutionServer("cat")
	if err != nil {
		t.Skipf("cannot launch cat: %v", err)
	}
	res := srv.RunPair(context.Background(), &RunPairRequest{TrackOutput: true}, 5*time.Second)
	if res.Kind != ExecCrash {
		t.Fatalf("result %v, want crash", res.Kind)
	}
}

func TestRunPairChildExitIsCrash(t *testing.T) {
	srv, err := LaunchExecutionServer("true")
	if err != nil {
		t.Skipf("cannot launch true: %v", err)
	}
	// Give the child a moment to exit so the read loop observes EOF.
	time.Sleep(100 * time.Millisecond)
	res := srv.RunPair(context.Background(), &RunPairRequest{}, 5*time.Second)
	if res.Kind != ExecCrash {
		t.Fatalf("result %v, want crash", res.Kind)
	}
}

func TestIdleTimer(t *testing.T) {
	srv, err := LaunchExecutionServer("cat")
	if err != nil {
		t.Skipf("cannot launch cat: %v", err)
	}
	defer srv.Kill()
	time.Sleep(50 * time.Millisecond)
	if srv.IdleFor() < 30*time.Millisecond {
		t.Fatal("idle timer did not advance")
	}
}
