package progress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tailor/internal/config"
	"tailor/internal/logging"
)

const (
	defaultIdleTimeout      = 5 * time.Minute
	defaultRetainTerminal   = 10 * time.Minute
	defaultSubscriberBuffer = 1024
	defaultSweepInterval    = 15 * time.Second
)

// Option customizes Registry construction.
type Option func(*Registry)

// WithIdleTimeout sets how long a channel may go without publishes before teardown.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithRetainTerminal sets how long a terminal event stays available for late subscribers.
func WithRetainTerminal(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retainTerminal = d
		}
	}
}

// WithSubscriberBuffer bounds each subscription's queue.
func WithSubscriberBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithSweepInterval sets the janitor period.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// WithLogger injects a logger for teardown diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logging.NewComponentLogger(logger, "progress")
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry maps request ids to progress channels. All subscriber-list
// mutations are serialized with publishes by mu.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*channel
	closed   bool

	idleTimeout    time.Duration
	retainTerminal time.Duration
	buffer         int
	sweepInterval  time.Duration
	now            func() time.Time
	logger         *slog.Logger

	stop context.CancelFunc
	wg   sync.WaitGroup
}

type channel struct {
	subscribers  map[*Subscription]struct{}
	watched      bool
	sequence     uint64
	lastActivity time.Time
	terminal     *Event
	terminalAt   time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		channels:       make(map[string]*channel),
		idleTimeout:    defaultIdleTimeout,
		retainTerminal: defaultRetainTerminal,
		buffer:         defaultSubscriberBuffer,
		sweepInterval:  defaultSweepInterval,
		now:            time.Now,
		logger:         logging.NewComponentLogger(nil, "progress"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// NewRegistryFromConfig builds a registry using the [progress] settings.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	return NewRegistry(
		WithIdleTimeout(cfg.IdleTimeout()),
		WithRetainTerminal(cfg.RetainTerminal()),
		WithSubscriberBuffer(cfg.Progress.SubscriberBuffer),
		WithSweepInterval(cfg.SweepInterval()),
		WithLogger(logger),
	)
}

// Start launches the janitor that tears down idle and expired channels.
// It is a no-op when already started.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stop != nil || r.closed {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Close stops the janitor and finishes every subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stop := r.stop
	var subs []*Subscription
	for id, ch := range r.channels {
		for sub := range ch.subscribers {
			subs = append(subs, sub)
		}
		delete(r.channels, id)
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.wg.Wait()
	for _, sub := range subs {
		sub.finish()
	}
}

// Subscribe registers a subscriber for requestID. The subscription always
// begins with a connected event; if the run already ended, the retained
// terminal event follows and the subscription finishes.
func (r *Registry) Subscribe(requestID string) *Subscription {
	requestID = strings.TrimSpace(requestID)
	sub := newSubscription(requestID, r.buffer)
	now := r.now()
	connected := Event{
		RequestID:  requestID,
		Type:       EventConnected,
		StageIndex: RunLevel,
		Message:    "connected",
		Timestamp:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub.push(connected)
	if r.closed {
		sub.finish()
		return sub
	}
	ch := r.channelLocked(requestID, now)
	if ch.terminal != nil {
		sub.push(*ch.terminal)
		sub.finish()
		return sub
	}
	ch.subscribers[sub] = struct{}{}
	ch.watched = true
	sub.cancel = func() { r.unsubscribe(requestID, sub) }
	return sub
}

// Publish stamps event with the request id, sequence, and timestamp and
// delivers it to every current subscriber. Publishes after a terminal event
// are ignored. The retained terminal event keeps Output only when the
// channel had a subscriber before the run ended.
func (r *Registry) Publish(requestID string, event Event) {
	requestID = strings.TrimSpace(requestID)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	ch := r.channelLocked(requestID, now)
	if ch.terminal != nil {
		r.logger.Debug("publish after terminal event ignored",
			logging.String(logging.FieldRequestID, requestID),
			logging.String("event", string(event.Type)),
		)
		return
	}

	ch.sequence++
	event.RequestID = requestID
	event.Sequence = ch.sequence
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	ch.lastActivity = now

	for sub := range ch.subscribers {
		sub.push(event)
	}
	if !event.Terminal() {
		return
	}

	retained := event
	if !ch.watched {
		// Unwatched runs keep their output in the run store only.
		retained.Output = nil
	}
	ch.terminal = &retained
	ch.terminalAt = now
	for sub := range ch.subscribers {
		sub.finish()
		delete(ch.subscribers, sub)
	}
}

// HasSubscribers reports whether requestID has at least one live subscriber.
func (r *Registry) HasSubscribers(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[strings.TrimSpace(requestID)]
	return ok && len(ch.subscribers) > 0
}

// Terminal returns the retained terminal event for requestID, if any.
func (r *Registry) Terminal(requestID string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[strings.TrimSpace(requestID)]
	if !ok || ch.terminal == nil {
		return Event{}, false
	}
	return *ch.terminal, true
}

// Stats summarizes registry occupancy.
type Stats struct {
	Channels    int `json:"channels"`
	Subscribers int `json:"subscribers"`
	Retained    int `json:"retained"`
}

// Stats returns current occupancy.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{Channels: len(r.channels)}
	for _, ch := range r.channels {
		stats.Subscribers += len(ch.subscribers)
		if ch.terminal != nil {
			stats.Retained++
		}
	}
	return stats
}

// Sweep removes expired terminal channels and tears down idle ones.
func (r *Registry) Sweep() {
	now := r.now()
	var idle []*Subscription

	r.mu.Lock()
	for id, ch := range r.channels {
		switch {
		case ch.terminal != nil:
			if now.Sub(ch.terminalAt) >= r.retainTerminal {
				delete(r.channels, id)
			}
		case now.Sub(ch.lastActivity) >= r.idleTimeout:
			for sub := range ch.subscribers {
				idle = append(idle, sub)
			}
			delete(r.channels, id)
			r.logger.Info("progress channel idle; tearing down",
				logging.String(logging.FieldRequestID, id),
				logging.Int("subscribers", len(ch.subscribers)),
				logging.Duration("idle_timeout", r.idleTimeout),
			)
		}
	}
	r.mu.Unlock()

	for _, sub := range idle {
		sub.finish()
	}
}

func (r *Registry) channelLocked(requestID string, now time.Time) *channel {
	ch, ok := r.channels[requestID]
	if !ok {
		ch = &channel{subscribers: make(map[*Subscription]struct{}), lastActivity: now}
		r.channels[requestID] = ch
	}
	return ch
}

func (r *Registry) unsubscribe(requestID string, sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[requestID]; ok {
		delete(ch.subscribers, sub)
	}
}
