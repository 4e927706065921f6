package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_HandlesUntilStop(t *testing.T) {
	in := make(chan int)
	var sum, exits atomic.Int64

	l := New(in, func(v int) error {
		sum.Add(int64(v))
		if v == 3 {
			return ErrStop
		}
		return nil
	}, func() { exits.Add(1) })
	l.Start(context.Background())

	in <- 1
	in <- 2
	in <- 3
	waitDone(t, l.Done())

	if sum.Load() != 6 {
		t.Fatalf("expected sum 6, got %d", sum.Load())
	}
	if exits.Load() != 1 {
		t.Fatalf("expected onExit to run once, got %d", exits.Load())
	}
}

func TestListener_Stop(t *testing.T) {
	in := make(chan int)
	var exits atomic.Int64

	l := New(in, func(int) error { return nil }, func() { exits.Add(1) })
	l.Start(context.Background())
	l.Stop()
	waitDone(t, l.Done())

	if exits.Load() != 1 {
		t.Fatalf("expected onExit to run once, got %d", exits.Load())
	}
}

func TestListener_HandlerError(t *testing.T) {
	in := make(chan int, 1)
	l := New(in, func(int) error { return errors.New("boom") })
	l.Start(context.Background())

	in <- 1
	waitDone(t, l.Done())
}

func TestListener_ClosedChannel(t *testing.T) {
	in := make(chan int)
	l := New(in, func(int) error { return nil })
	l.Start(context.Background())

	close(in)
	waitDone(t, l.Done())
}
