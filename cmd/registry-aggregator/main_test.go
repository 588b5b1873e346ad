package main

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cratehub/registry/pkg/observability"
)

// A tick firing while the previous run is still draining must be skipped,
// never run concurrently.
func TestCronSkipsOverlappingRuns(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	c := newCron(logger)

	var runs int32
	release := make(chan struct{})
	id, err := c.AddFunc("@every 1h", func() {
		atomic.AddInt32(&runs, 1)
		<-release
	})
	if err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	job := c.Entry(id).WrappedJob

	firstDone := make(chan struct{})
	go func() {
		job.Run()
		close(firstDone)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("First run never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Fires while the first run is still blocked; must return without
	// entering the job.
	job.Run()
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected overlapping run to be skipped, got %d runs", got)
	}

	close(release)
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("First run never finished")
	}

	// With the previous run finished, the next tick runs normally.
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow-up run never finished")
	}
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Errorf("Expected 2 runs total, got %d", got)
	}
}

func TestCronFieldPairs(t *testing.T) {
	fields := cronFields([]interface{}{"now", "2026-08-26", "entry", 3, "dangling"})
	if fields["now"] != "2026-08-26" {
		t.Errorf("Expected now field, got %v", fields["now"])
	}
	if fields["entry"] != 3 {
		t.Errorf("Expected entry field, got %v", fields["entry"])
	}
	if _, ok := fields["dangling"]; ok {
		t.Error("Dangling key must be ignored")
	}
}
