package sysstat

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestCollectStopsWhenContextCancelled(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn sleep: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()

	ctx, cancel := context.WithCancel(context.Background())

	samples := make(chan Sample, 8)
	done := make(chan struct{})
	go func() {
		Collect(ctx, cmd.Process.Pid, 10*time.Millisecond, func(s Sample) {
			select {
			case samples <- s:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-samples:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one sample")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Collect did not return after context cancellation")
	}
}

func TestCollectReturnsOnUnknownPID(t *testing.T) {
	done := make(chan struct{})
	go func() {
		Collect(context.Background(), os.Getpid()+1_000_000, time.Millisecond, func(Sample) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Collect should return immediately for an unobservable pid")
	}
}
