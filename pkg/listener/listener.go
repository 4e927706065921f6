package listener

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStop is returned by a handler to end the listener loop without error.
var ErrStop = errors.New("listener stopped")

type Job interface {
	Start(ctx context.Context)
	Stop()
}

// Listener feeds every value received on a channel to a handler, one at a
// time, until the context is cancelled, Stop is called, the channel is
// closed, or the handler returns an error.
type Listener[T any] struct {
	handler func(input T) error
	onExit  func()

	in     <-chan T
	wg     sync.WaitGroup
	cancel func()
	done   chan struct{}
}

// New creates a listener. onExit, if given, runs once on the listener
// goroutine after the loop ends, whatever the reason.
func New[T any](
	in <-chan T,
	handler func(T) error,
	onExit ...func(),
) *Listener[T] {
	if len(onExit) == 0 {
		onExit = []func(){func() {}}
	}

	return &Listener[T]{
		in:      in,
		handler: handler,
		cancel:  func() {},
		onExit:  onExit[0],
		done:    make(chan struct{}),
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer close(l.done)
		defer l.onExit()

		for {
			err := l.run(ctx)
			switch {
			case errors.Is(err, ErrStop):
				return
			case err != nil:
				slog.Error("listener handler failed", "error", err)
				return
			}
		}
	}()
}

func (l *Listener[T]) run(ctx context.Context) error {
	select {
	case inp, ok := <-l.in:
		if !ok {
			return ErrStop
		}
		return l.handler(inp)
	case <-ctx.Done():
		return ErrStop
	}
}

// Done is closed once the loop has ended and onExit has returned.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// Stop ends the loop and waits for it to finish. It must not be called from
// the handler or from onExit.
func (l *Listener[T]) Stop() {
	l.cancel()
	l.wg.Wait()
}
