// Package permission models the host's asynchronous permission subsystem.
//
// Request never blocks and never reports a result inline: the grant or
// denial arrives later through the ResultFunc, typically after a user acts
// on the dashboard. The coordinator consumes it as a separate event.
package permission

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Capability names a permission-gated resource.
type Capability string

// Camera is the capability needed to open a capture device.
const Camera Capability = "camera"

// Requester is the side of the subsystem the coordinator uses.
type Requester interface {
	// Granted reports whether c is currently granted.
	Granted(c Capability) bool

	// Request asks the user for c. The answer is delivered asynchronously.
	Request(c Capability)
}

// ResultFunc receives permission results.
type ResultFunc func(c Capability, granted bool)

// Status describes one capability.
type Status struct {
	Capability  Capability `json:"capability"`
	Granted     bool       `json:"granted"`
	Pending     bool       `json:"pending"`
	RequestedAt time.Time  `json:"requested_at,omitempty"`
	Requests    int        `json:"requests"`
}

// Broker is an in-memory permission subsystem. Results are resolved by an
// external actor (HTTP API, CLI flag) through Resolve.
type Broker struct {
	logger *slog.Logger
	clock  clockwork.Clock

	mu       sync.Mutex
	status   map[Capability]*Status
	onResult ResultFunc
}

// Option configures a Broker.
type Option func(*Broker)

// WithAutoGrant pre-grants the given capabilities.
func WithAutoGrant(caps ...Capability) Option {
	return func(b *Broker) {
		for _, c := range caps {
			b.entry(c).Granted = true
		}
	}
}

// WithClock sets the clock used for request timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(b *Broker) {
		b.clock = clock
	}
}

// NewBroker creates a broker with nothing granted.
func NewBroker(logger *slog.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		logger: logger,
		clock:  clockwork.NewRealClock(),
		status: make(map[Capability]*Status),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnResult sets the callback that receives resolved requests.
func (b *Broker) OnResult(fn ResultFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResult = fn
}

// Granted reports whether c is granted.
func (b *Broker) Granted(c Capability) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.status[c]
	return ok && s.Granted
}

// Request records a pending request for c. Repeated requests while one is
// pending are coalesced.
func (b *Broker) Request(c Capability) {
	b.mu.Lock()
	s := b.entry(c)
	if s.Granted {
		b.mu.Unlock()
		return
	}
	s.Requests++
	if s.Pending {
		b.mu.Unlock()
		return
	}
	s.Pending = true
	s.RequestedAt = b.clock.Now()
	b.mu.Unlock()

	b.logger.Info("permission requested", "capability", c)
}

// Resolve records the user's answer for c and delivers it to the result
// callback. A grant persists; a denial clears any earlier grant.
// The callback runs on the caller's goroutine, outside the broker lock.
func (b *Broker) Resolve(c Capability, granted bool) {
	b.mu.Lock()
	s := b.entry(c)
	s.Granted = granted
	s.Pending = false
	fn := b.onResult
	b.mu.Unlock()

	b.logger.Info("permission resolved", "capability", c, "granted", granted)

	if fn != nil {
		fn(c, granted)
	}
}

// Revoke withdraws a grant without notifying anyone.
func (b *Broker) Revoke(c Capability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(c).Granted = false
}

// Status returns a snapshot for c.
func (b *Broker) Status(c Capability) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.entry(c)
}

// entry returns the status record for c, creating it. Caller holds mu.
func (b *Broker) entry(c Capability) *Status {
	s, ok := b.status[c]
	if !ok {
		s = &Status{Capability: c}
		b.status[c] = s
	}
	return s
}

// Ensure Broker implements Requester.
var _ Requester = (*Broker)(nil)
