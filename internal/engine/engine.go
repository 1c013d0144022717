// Package engine implements the event-chain execution engine with IEC 61131
// cyclic-task semantics: a single dispatcher goroutine drains a bounded run
// queue, suspends itself when idle, and is re-armed by a periodic cycle timer
// or by a fresh enqueue.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/observability"
	"github.com/fbflow/fbflow/internal/telemetry"
)

const (
	// DefaultQueueCapacity bounds each event queue when the config leaves it unset.
	DefaultQueueCapacity = 256
	// DefaultCycleTime is the cycle period when the config leaves it unset.
	DefaultCycleTime = 10 * time.Millisecond
)

// Command is a management command applied to the engine lifecycle.
type Command int

const (
	// CmdStart drains the init queue and launches the dispatcher.
	CmdStart Command = iota
	// CmdStop ends the dispatcher, leaving pending entries in place.
	CmdStop
	// CmdKill clears both queues and ends the dispatcher.
	CmdKill
)

// Config sizes an engine instance.
type Config struct {
	CycleTime     time.Duration
	Deadline      time.Duration
	QueueCapacity int
}

func (c Config) normalize() Config {
	if c.CycleTime <= 0 {
		c.CycleTime = DefaultCycleTime
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	return c
}

// Engine owns the two event queues, the cycle timer, and the dispatcher
// goroutine. All exported methods are safe for concurrent use; dispatch itself
// is single-threaded and cooperative with respect to function-block code.
type Engine struct {
	id        string
	initQueue *EventQueue
	runQueue  *EventQueue

	suspend chan struct{}

	alive       atomic.Bool
	processing  atomic.Bool
	exeDone     atomic.Bool
	initDrained atomic.Bool

	cycleTime atomic.Int64
	deadline  atomic.Int64

	startMu sync.Mutex
	done    chan struct{}

	log     observability.Logger
	metrics *telemetry.RuntimeMetrics
}

// New constructs a stopped engine.
func New(cfg Config, log observability.Logger, metrics *telemetry.RuntimeMetrics) *Engine {
	cfg = cfg.normalize()
	if log == nil {
		log = observability.Noop()
	}
	id := uuid.NewString()
	e := &Engine{
		id:        id,
		initQueue: NewEventQueue("init", id, cfg.QueueCapacity, log, metrics),
		runQueue:  NewEventQueue("run", id, cfg.QueueCapacity, log, metrics),
		suspend:   make(chan struct{}, 1),
		done:      closedChan(),
		log:       log,
		metrics:   metrics,
	}
	e.cycleTime.Store(int64(cfg.CycleTime))
	e.deadline.Store(int64(cfg.Deadline))
	return e
}

// ID returns the engine instance identifier used in log and metric attributes.
func (e *Engine) ID() string { return e.id }

// SetCycleTime updates the cycle period. Takes effect at the next Start.
func (e *Engine) SetCycleTime(d time.Duration) {
	if d <= 0 {
		d = DefaultCycleTime
	}
	e.cycleTime.Store(int64(d))
}

// SetDeadline updates the per-cycle deadline. Zero disables supervision.
func (e *Engine) SetDeadline(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.deadline.Store(int64(d))
}

// IsProcessingEvents reports whether an externally triggered chain is active.
func (e *Engine) IsProcessingEvents() bool { return e.processing.Load() }

// ExeDone reports whether the dispatcher has drained the run queue and is
// suspended, or about to suspend, until the next cycle tick.
func (e *Engine) ExeDone() bool { return e.exeDone.Load() }

// Alive reports whether the dispatcher goroutine is running.
func (e *Engine) Alive() bool { return e.alive.Load() }

// AddEventEntry enqueues an entry on the run queue and wakes the dispatcher.
// A full queue drops the entry; the queue logs the drop.
func (e *Engine) AddEventEntry(entry fb.EventEntry) {
	if e.runQueue.TryEnqueue(entry) {
		e.resumeSelfSuspend()
	}
}

// AddInitEventEntry enqueues an entry on the init queue. Init entries are
// delivered exactly once, synchronously, when Start drains the queue.
func (e *Engine) AddInitEventEntry(entry fb.EventEntry) {
	e.initQueue.TryEnqueue(entry)
}

// StartEventChain marks the engine as processing an externally triggered
// chain and enqueues its first entry.
func (e *Engine) StartEventChain(entry fb.EventEntry) {
	e.processing.Store(true)
	e.AddEventEntry(entry)
}

// ChangeExecutionState applies a management command. Unknown commands are
// no-ops, as is Start on an engine that is already alive.
func (e *Engine) ChangeExecutionState(cmd Command) {
	switch cmd {
	case CmdStart:
		e.start()
	case CmdKill:
		e.initQueue.Clear()
		e.runQueue.Clear()
		e.stop()
	case CmdStop:
		e.stop()
	default:
		e.log.Debug("ignoring unknown management command",
			observability.Int("command", int(cmd)),
			observability.String("engine_id", e.id))
	}
}

// Join blocks until the dispatcher goroutine has exited. Returns immediately
// when the engine was never started.
func (e *Engine) Join() {
	e.startMu.Lock()
	done := e.done
	e.startMu.Unlock()
	<-done
}

func (e *Engine) start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.alive.Load() {
		return
	}

	// Init entries run on the caller's goroutine, in FIFO order, before the
	// periodic loop exists.
	for {
		entry, ok := e.initQueue.TryDequeue()
		if !ok {
			break
		}
		if entry.FB == nil {
			e.log.Warn("skipping malformed init event entry",
				observability.String("engine_id", e.id))
			continue
		}
		e.dispatch(entry)
	}
	e.initDrained.Store(true)

	// Drop any stale wake token left over from a previous Stop.
	select {
	case <-e.suspend:
	default:
	}

	timer := NewCycleTimer(time.Duration(e.cycleTime.Load()), e.suspend, func() {
		e.log.Warn("cycle overrun, tick collapsed",
			observability.String("engine_id", e.id))
		e.metrics.RecordOverrun(e.id)
	})

	e.done = make(chan struct{})
	e.alive.Store(true)
	go e.run(timer, e.done)
}

func (e *Engine) stop() {
	e.alive.Store(false)
	e.resumeSelfSuspend()
}

func (e *Engine) resumeSelfSuspend() {
	select {
	case e.suspend <- struct{}{}:
	default:
	}
}

func (e *Engine) selfSuspend() {
	<-e.suspend
}

func (e *Engine) run(timer *CycleTimer, done chan struct{}) {
	defer close(done)
	defer timer.Stop()

	e.exeDone.Store(false)
	timer.Start()
	cycleStart := time.Now()

	for e.alive.Load() {
		if e.runQueue.IsEmpty() && e.initDrained.Load() {
			e.checkDeadline(cycleStart)
			e.processing.Store(false)
			e.exeDone.Store(true)
			e.metrics.RecordCycle(e.id)
			e.selfSuspend()
			if !e.alive.Load() {
				return
			}
			timer.Start()
			e.exeDone.Store(false)
			cycleStart = time.Now()
			continue
		}

		entry, ok := e.runQueue.TryDequeue()
		if !ok {
			continue
		}
		if entry.FB == nil {
			e.log.Warn("skipping malformed event entry",
				observability.String("engine_id", e.id))
			continue
		}
		e.dispatch(entry)
	}
}

// dispatch delivers one entry. Function-block faults are absorbed: the engine
// does not fail short of an explicit Stop or Kill.
func (e *Engine) dispatch(entry fb.EventEntry) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("function block fault absorbed",
				observability.String("engine_id", e.id),
				observability.String("fb", entry.FB.InstanceName()),
				observability.Int("port", entry.Port),
				observability.Field{Key: "panic", Value: r})
		}
	}()
	entry.FB.ReceiveInputEvent(entry.Port, e)
	e.metrics.RecordDispatch(e.id)
}

func (e *Engine) checkDeadline(cycleStart time.Time) {
	deadline := time.Duration(e.deadline.Load())
	if deadline <= 0 {
		return
	}
	if elapsed := time.Since(cycleStart); elapsed > deadline {
		e.log.Warn("cycle deadline exceeded",
			observability.String("engine_id", e.id),
			observability.String("elapsed", elapsed.String()),
			observability.String("deadline", deadline.String()))
		e.metrics.RecordOverrun(e.id)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
