package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/metrics"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/sink"
)

// Dispatcher fans the merged event stream out into per-origin buffers and
// delivers each buffer to the sink in order.
type Dispatcher interface {
	// Start begins consuming events from the input channel.
	Start(ctx context.Context) error

	// Stop drains the buffers and shuts the dispatcher down. Events still
	// buffered when the context expires are abandoned.
	Stop(ctx context.Context) error

	// Stats returns current dispatcher statistics.
	Stats() DispatcherStats
}

// Config contains dispatcher configuration.
type Config struct {
	// BufferCapacity is the size of each per-origin buffer.
	BufferCapacity int

	// Policy selects the full-buffer behavior.
	Policy Policy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 1000,
		Policy:         DropOldest,
	}
}

// DispatcherStats contains runtime statistics.
type DispatcherStats struct {
	EventsIn   int64
	Delivered  int64
	Dropped    int64
	SinkErrors int64
	Buffers    map[string]RingStats
}

// dispatcher is the internal implementation.
type dispatcher struct {
	cfg    Config
	logger *slog.Logger

	// Input from Connection Manager
	input <-chan event.Envelope

	// Delivery target
	sink sink.Sink

	// Per-origin buffers, created on first event from each origin
	mu       sync.Mutex
	rings    map[string]*Ring[event.Envelope]
	draining bool

	// Lifecycle
	ctx         context.Context
	cancel      context.CancelFunc
	flushCtx    context.Context
	flushCancel context.CancelFunc
	wg          sync.WaitGroup
	drainWg     sync.WaitGroup

	// Stats
	eventsIn   int64
	delivered  int64
	dropped    int64
	sinkErrors int64
}

// NewDispatcher creates a new Dispatcher reading from input and delivering
// to snk.
func NewDispatcher(cfg Config, input <-chan event.Envelope, snk sink.Sink, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultConfig().BufferCapacity
	}
	if cfg.Policy == "" {
		cfg.Policy = DropOldest
	}

	return &dispatcher{
		cfg:    cfg,
		logger: logger,
		input:  input,
		sink:   snk,
		rings:  make(map[string]*Ring[event.Envelope]),
	}
}

// Start begins consuming events.
func (d *dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	// Deliveries run on their own context so buffered events can still be
	// flushed after Stop cancels the main one.
	d.flushCtx, d.flushCancel = context.WithCancel(context.Background())

	d.wg.Add(1)
	go d.dispatchLoop()

	d.logger.Info("dispatcher started",
		"buffer_capacity", d.cfg.BufferCapacity,
		"policy", string(d.cfg.Policy),
	)
	return nil
}

// Stop drains and shuts down.
func (d *dispatcher) Stop(ctx context.Context) error {
	d.logger.Info("stopping dispatcher")

	if d.cancel != nil {
		d.cancel()
	}

	// Closing the rings lets each drain goroutine deliver what is already
	// buffered, then exit.
	d.mu.Lock()
	d.draining = true
	for _, ring := range d.rings {
		ring.Close()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.drainWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out, abandoning buffered events")
		if d.flushCancel != nil {
			d.flushCancel()
		}
		return ctx.Err()
	}

	if d.flushCancel != nil {
		d.flushCancel()
	}
	return nil
}

// Stats returns current statistics.
func (d *dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	buffers := make(map[string]RingStats, len(d.rings))
	for origin, ring := range d.rings {
		buffers[origin] = ring.Stats()
	}

	return DispatcherStats{
		EventsIn:   d.eventsIn,
		Delivered:  d.delivered,
		Dropped:    d.dropped,
		SinkErrors: d.sinkErrors,
		Buffers:    buffers,
	}
}

// dispatchLoop is the main consuming goroutine.
func (d *dispatcher) dispatchLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case env, ok := <-d.input:
			if !ok {
				d.logger.Info("input channel closed")
				return
			}
			d.dispatch(env)
		}
	}
}

// dispatch buffers a single event into its origin's ring.
func (d *dispatcher) dispatch(env event.Envelope) {
	ring := d.ringFor(env.Origin)
	if ring == nil {
		return
	}

	d.mu.Lock()
	d.eventsIn++
	d.mu.Unlock()

	dropped, ok := ring.Send(env)
	if !ok {
		return
	}
	if dropped {
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		metrics.EventsDroppedTotal.WithLabelValues(env.Origin).Inc()
		d.logger.Debug("dropped oldest buffered event", "origin", env.Origin)
	}
	metrics.BufferDepth.WithLabelValues(env.Origin).Set(float64(ring.Len()))
}

// ringFor returns the ring for an origin, creating it and its drain
// goroutine on first use. Returns nil once draining has begun.
func (d *dispatcher) ringFor(origin string) *Ring[event.Envelope] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.draining {
		return nil
	}
	if ring, ok := d.rings[origin]; ok {
		return ring
	}

	ring := NewRing[event.Envelope](d.cfg.BufferCapacity, d.cfg.Policy)
	d.rings[origin] = ring

	d.drainWg.Add(1)
	go d.drainLoop(origin, ring)

	d.logger.Debug("created origin buffer", "origin", origin, "capacity", d.cfg.BufferCapacity)
	return ring
}

// drainLoop delivers one origin's buffered events to the sink in order.
func (d *dispatcher) drainLoop(origin string, ring *Ring[event.Envelope]) {
	defer d.drainWg.Done()

	for {
		env, ok := ring.Receive()
		if !ok {
			return
		}
		metrics.BufferDepth.WithLabelValues(origin).Set(float64(ring.Len()))

		if err := d.sink.Put(d.flushCtx, env); err != nil {
			d.mu.Lock()
			d.sinkErrors++
			d.mu.Unlock()
			metrics.SinkErrorsTotal.WithLabelValues(origin).Inc()
			d.logger.Warn("sink delivery failed",
				"origin", origin,
				"event_id", env.ID,
				"error", err,
			)
			continue
		}

		d.mu.Lock()
		d.delivered++
		d.mu.Unlock()
		metrics.EventsDeliveredTotal.WithLabelValues(origin).Inc()
	}
}
