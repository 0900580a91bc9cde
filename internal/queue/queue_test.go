package queue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestQueueRunsJobsAndReturnsErrors(t *testing.T) {
	rqm := NewRequestQueueManager(4, 2, zerolog.Nop())
	defer rqm.Shutdown()

	var ran int32
	wantErr := errors.New("boom")

	for i := 0; i < 10; i++ {
		errc := make(chan error, 1)
		fail := i%2 == 0
		err := rqm.Submit(context.Background(), Job{
			Fn: func() error {
				atomic.AddInt32(&ran, 1)
				if fail {
					return wantErr
				}
				return nil
			},
			Errc: errc,
		})
		if err != nil {
			t.Fatalf("job %d: submit: %v", i, err)
		}
		err = <-errc
		if fail && !errors.Is(err, wantErr) {
			t.Fatalf("job %d: expected error, got %v", i, err)
		}
		if !fail && err != nil {
			t.Fatalf("job %d: unexpected error %v", i, err)
		}
	}

	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Fatalf("expected 10 jobs to run, got %d", got)
	}
}

func TestPanickingJobBecomesError(t *testing.T) {
	rqm := NewRequestQueueManager(1, 1, zerolog.Nop())
	defer rqm.Shutdown()

	errc := make(chan error, 1)
	if err := rqm.Submit(context.Background(), Job{Fn: func() error { panic("nil session") }, Errc: errc}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := <-errc; err == nil || !strings.Contains(err.Error(), "nil session") {
		t.Fatalf("expected panic error, got %v", err)
	}

	// The worker survived.
	errc = make(chan error, 1)
	if err := rqm.Submit(context.Background(), Job{Fn: func() error { return nil }, Errc: errc}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSubmitGivesUpWhenContextEnds(t *testing.T) {
	rqm := NewRequestQueueManager(0, 1, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	if err := rqm.Submit(context.Background(), Job{Fn: func() error {
		close(started)
		<-release
		return nil
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rqm.Submit(ctx, Job{Fn: func() error { return nil }})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	close(release)
	rqm.Shutdown()
}

func TestShutdownIsIdempotentAndRejectsJobs(t *testing.T) {
	rqm := NewRequestQueueManager(1, 1, zerolog.Nop())
	rqm.Shutdown()
	rqm.Shutdown()

	if err := rqm.Submit(context.Background(), Job{Fn: func() error { return nil }}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
