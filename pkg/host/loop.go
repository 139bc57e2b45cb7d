// Package host provides the single event thread the session runs on.
//
// Every lifecycle, permission and surface event is funneled through one
// Loop, so the coordinator never sees two events at once and observes them
// in the order they were posted.
package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-camsession/pkg/pipeline"
)

// Handler is the session side of the loop. *coordinator.Coordinator
// implements it.
type Handler interface {
	Initialize() error
	Resume(sel pipeline.Selector) error
	Pause() error
	OnPermissionResult(granted bool, sel pipeline.Selector) error
	Close() error
}

// AfterFunc observes each event once it was handled.
type AfterFunc func(ev Event, err error)

type envelope struct {
	ev     Event
	result chan error
}

// Loop serializes events onto one goroutine.
type Loop struct {
	handler Handler
	logger  *slog.Logger
	after   []AfterFunc

	events chan envelope
	done   chan struct{}

	mu      sync.Mutex
	running bool
	handled uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithQueueSize sets how many events may be queued before Post blocks.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.events = make(chan envelope, n)
		}
	}
}

// WithAfter registers fn to run on the event thread after every event.
func WithAfter(fn AfterFunc) Option {
	return func(l *Loop) {
		l.after = append(l.after, fn)
	}
}

// New creates a loop dispatching to h.
func New(h Handler, opts ...Option) *Loop {
	l := &Loop{
		handler: h,
		events:  make(chan envelope, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Run handles events until a Shutdown event was processed or ctx is done.
// It returns nil after Shutdown and ctx.Err() otherwise. Run must only be
// called once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		close(l.done)
	}()

	l.logger.Info("event loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("event loop stopped", "reason", ctx.Err())
			return ctx.Err()

		case env := <-l.events:
			err := l.dispatch(env.ev)

			l.mu.Lock()
			l.handled++
			l.mu.Unlock()

			for _, fn := range l.after {
				fn(env.ev, err)
			}
			if env.result != nil {
				env.result <- err
			}

			if _, ok := env.ev.(Shutdown); ok {
				l.logger.Info("event loop stopped", "reason", "shutdown")
				return nil
			}
		}
	}
}

// Post queues ev without waiting for it to be handled. It blocks while the
// queue is full and returns ErrStopped once the loop has exited.
func (l *Loop) Post(ev Event) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.events <- envelope{ev: ev}:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Do queues ev and waits for the handler's result.
func (l *Loop) Do(ctx context.Context, ev Event) error {
	env := envelope{ev: ev, result: make(chan error, 1)}

	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.events <- env:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-l.done:
		// The loop may have handled ev just before exiting.
		select {
		case err := <-env.result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// IsRunning returns whether Run is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Handled returns the number of events processed.
func (l *Loop) Handled() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handled
}

func (l *Loop) dispatch(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Event: ev.Name(), Value: r}
			l.logger.Error("event handler panicked", "event", ev.Name(), "panic", r)
		}
	}()

	l.logger.Debug("handling event", "event", ev.Name())

	switch e := ev.(type) {
	case Initialize:
		return l.handler.Initialize()
	case Resume:
		return l.handler.Resume(e.Selector)
	case Pause:
		return l.handler.Pause()
	case PermissionResult:
		return l.handler.OnPermissionResult(e.Granted, e.Selector)
	case Shutdown:
		return l.handler.Close()
	case Call:
		if e.Fn == nil {
			return nil
		}
		return e.Fn()
	default:
		return ErrUnknownEvent
	}
}
