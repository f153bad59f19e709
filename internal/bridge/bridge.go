package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/pipeline"
	"go.uber.org/zap"
)

// Sink is the consumer side: the channel that carries records to a client.
// Send may fail; failures are logged and never retried.
type Sink interface {
	Send(ctx context.Context, rec pipeline.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec pipeline.Record) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, rec pipeline.Record) error {
	return f(ctx, rec)
}

// Drop reasons.
const (
	DropScheduleTimeout = "schedule_timeout"
	DropClosed          = "closed"
	DropSendFailed      = "send_failed"
)

// Options configures a Bridge.
type Options struct {
	// QueueSize bounds records waiting for the consumer.
	QueueSize int
	// ScheduleTimeout is how long Deliver waits for queue space.
	ScheduleTimeout time.Duration
	// DrainTimeout bounds how long Close waits for queued records.
	DrainTimeout time.Duration
	// Capture is the session's identifier cell. Optional.
	Capture *Capture
	// OnCapture runs once, off the pump, when this bridge captures an
	// identifier.
	OnCapture func(id string)
	// Hold defers capture until Release. Used while a resume attempt may
	// still fail and take its identifier with it.
	Hold bool
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

const (
	DefaultQueueSize       = 256
	DefaultScheduleTimeout = 100 * time.Millisecond
	DefaultDrainTimeout    = 2 * time.Second
)

type item struct {
	rec      pipeline.Record
	captured string
	// notifyOnly items carry a released capture and no record.
	notifyOnly bool
}

// Bridge hands records from the pump's goroutine to a single consumer
// goroutine that calls the sink. Records reach the sink in the order they
// were delivered.
type Bridge struct {
	sink    Sink
	opts    Options
	log     *zap.Logger
	metrics *monitoring.Metrics

	queue  chan item
	closed chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	holdMu  sync.Mutex
	holding bool
	held    string
}

// New starts the consumer goroutine.
func New(sink Sink, opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ScheduleTimeout <= 0 {
		opts.ScheduleTimeout = DefaultScheduleTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Capture == nil {
		opts.Capture = &Capture{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		sink:    sink,
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		queue:   make(chan item, opts.QueueSize),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		holding: opts.Hold,
	}
	go b.consume()
	return b
}

// Deliver schedules rec for the consumer. It waits at most the schedule
// timeout for space and reports false if the record was dropped instead.
//
// Identifier capture happens here, in delivery order, so a later record can
// never win over an earlier one even if the earlier one is dropped.
func (b *Bridge) Deliver(rec pipeline.Record) bool {
	it := item{rec: rec}
	if rec.HasSessionID() {
		it.captured = b.offer(rec)
	}
	return b.schedule(it)
}

func (b *Bridge) offer(rec pipeline.Record) string {
	b.holdMu.Lock()
	if b.holding {
		if b.held == "" {
			b.held = rec.SessionID
			b.log.Debug("Holding agent session id",
				zap.String("agent_session", rec.SessionID),
				zap.String("source", rec.SessionIDSource))
		}
		b.holdMu.Unlock()
		return ""
	}
	b.holdMu.Unlock()

	if !b.opts.Capture.Offer(rec.SessionID) {
		return ""
	}
	b.log.Info("Captured agent session id",
		zap.String("agent_session", rec.SessionID),
		zap.String("source", rec.SessionIDSource))
	return rec.SessionID
}

// Release ends a hold. With commit set, the first identifier seen while
// holding is offered to the capture cell and the callback runs after every
// record delivered before it; otherwise it is discarded. Later records
// capture normally. Release reports whether an identifier was captured.
func (b *Bridge) Release(commit bool) bool {
	b.holdMu.Lock()
	if !b.holding {
		b.holdMu.Unlock()
		return false
	}
	id := b.held
	b.holding, b.held = false, ""
	b.holdMu.Unlock()

	if id == "" {
		return false
	}
	if !commit {
		b.log.Info("Discarding agent session id from failed resume", zap.String("agent_session", id))
		return false
	}
	if !b.opts.Capture.Offer(id) {
		return false
	}
	b.log.Info("Captured agent session id", zap.String("agent_session", id), zap.String("source", "resume"))
	b.schedule(item{captured: id, notifyOnly: true})
	return true
}

func (b *Bridge) schedule(it item) bool {
	select {
	case <-b.closed:
		return b.drop(it, DropClosed)
	default:
	}

	select {
	case b.queue <- it:
		return true
	default:
	}

	timer := time.NewTimer(b.opts.ScheduleTimeout)
	defer timer.Stop()
	select {
	case b.queue <- it:
		return true
	case <-timer.C:
		return b.drop(it, DropScheduleTimeout)
	case <-b.closed:
		return b.drop(it, DropClosed)
	}
}

// Close stops accepting records, lets the consumer finish what is queued,
// and returns once it has. If the sink is still busy after the drain
// timeout its context is cancelled. Close is safe to call more than once.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		select {
		case <-b.done:
			b.cancel()
			return
		case <-time.After(b.opts.DrainTimeout):
		}

		b.log.Warn("Bridge drain timed out, cancelling sink")
		b.cancel()
		select {
		case <-b.done:
		case <-time.After(b.opts.DrainTimeout):
			err = errors.New("bridge consumer did not stop")
		}
	})
	return err
}

// Done is closed when the consumer goroutine has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) consume() {
	defer close(b.done)
	for {
		select {
		case it := <-b.queue:
			b.send(it)
		case <-b.closed:
			for {
				select {
				case it := <-b.queue:
					b.send(it)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) send(it item) {
	if it.notifyOnly {
		b.notify(it.captured)
		return
	}
	if err := b.sink.Send(b.ctx, it.rec); err != nil {
		b.log.Debug("Record delivery failed",
			zap.Uint64("seq", it.rec.Seq),
			zap.String("kind", string(it.rec.Kind)),
			zap.Error(err))
		b.metrics.Dropped(DropSendFailed)
	} else {
		b.metrics.Delivered(string(it.rec.Kind))
	}
	if it.captured != "" {
		b.notify(it.captured)
	}
}

func (b *Bridge) drop(it item, reason string) bool {
	if it.notifyOnly {
		go b.notify(it.captured)
		return false
	}
	b.log.Warn("Dropping record",
		zap.Uint64("seq", it.rec.Seq),
		zap.String("kind", string(it.rec.Kind)),
		zap.String("reason", reason))
	b.metrics.Dropped(reason)
	if it.captured != "" {
		go b.notify(it.captured)
	}
	return false
}

func (b *Bridge) notify(id string) {
	if b.opts.OnCapture == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Session id callback panicked", zap.Any("panic", r))
		}
	}()
	b.opts.OnCapture(id)
}
