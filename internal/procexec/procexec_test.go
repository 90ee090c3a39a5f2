package procexec

import (
	"context"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	t.Parallel()

	result, err := Run(context.Background(), Command{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := string(result.Stdout); got != "out\n" {
		t.Fatalf("stdout = %q", got)
	}
	if got := string(result.Stderr); got != "err\n" {
		t.Fatalf("stderr = %q", got)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d", result.ExitCode)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()

	result, err := Run(context.Background(), Command{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo boom >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
	if tail := result.StderrTail(1); tail != "boom" {
		t.Fatalf("stderr tail = %q", tail)
	}
}

func TestRunMissingBinary(t *testing.T) {
	t.Parallel()

	if _, err := Run(context.Background(), Command{Binary: "/nonexistent/tool"}); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRunContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, Command{
		Binary:      "/bin/sh",
		Args:        []string{"-c", "sleep 30"},
		GracePeriod: time.Second,
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed promptly, took %v", elapsed)
	}
}

func TestStderrTailLimitsLines(t *testing.T) {
	t.Parallel()

	r := &Result{Stderr: []byte("a\nb\nc\nd\n")}
	if got := r.StderrTail(2); got != "c\nd" {
		t.Fatalf("tail = %q", got)
	}
	empty := &Result{}
	if got := empty.StderrTail(2); got != "" {
		t.Fatalf("empty tail = %q", got)
	}
}
