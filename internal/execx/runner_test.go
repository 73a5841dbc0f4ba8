package execx

import (
	"context"
	"strings"
	"testing"
	"time"

	"go_hostpanel/internal/errs"
)

func TestRunner_CapturesOutput(t *testing.T) {
	r := NewRunner(5*time.Second, nil)

	out, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo oops >&2"},
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "hello" {
		t.Errorf("Expected stdout 'hello', got %q", out.Stdout)
	}
	if strings.TrimSpace(out.Stderr) != "oops" {
		t.Errorf("Expected stderr 'oops', got %q", out.Stderr)
	}
	if out.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", out.ExitCode)
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := NewRunner(5*time.Second, nil)

	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo bad >&2; exit 3"}})
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if out.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", out.ExitCode)
	}
	if out.TimedOut {
		t.Error("Non-zero exit must not be reported as timed out")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("Expected stderr in error, got %v", err)
	}
}

func TestRunner_TimeoutKillsProcessGroup(t *testing.T) {
	r := NewRunner(5*time.Second, nil)

	start := time.Now()
	out, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if !errs.IsKind(err, errs.KindTimedOut) {
		t.Fatalf("Expected timed_out error, got %v", err)
	}
	if !out.TimedOut {
		t.Error("Expected TimedOut flag")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Expected prompt kill, took %s", elapsed)
	}
}

func TestRunner_Stdin(t *testing.T) {
	r := NewRunner(5*time.Second, nil)

	out, err := r.Run(context.Background(), Command{
		Name:  "cat",
		Stdin: strings.NewReader("s3cret"),
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if out.Stdout != "s3cret" {
		t.Errorf("Expected stdin echoed, got %q", out.Stdout)
	}
}

func TestLookPath_Missing(t *testing.T) {
	_, err := LookPath("definitely-not-a-real-tool-xyz")
	if !errs.IsKind(err, errs.KindToolNotFound) {
		t.Errorf("Expected tool_not_found, got %v", err)
	}
}
