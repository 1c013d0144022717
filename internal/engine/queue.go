package engine

import (
	"sync"

	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/observability"
	"github.com/fbflow/fbflow/internal/telemetry"
)

// EventQueue is a fixed-capacity FIFO ring of event entries. Enqueue writes at
// the tail slot only when it is vacant; a full queue drops the entry and logs
// at error severity instead of blocking, which keeps enqueue O(1) from any
// caller. Dequeue clears the head slot before advancing so a wrapped-around
// tail can observe vacancy.
type EventQueue struct {
	mu      sync.Mutex
	slots   []*fb.EventEntry
	head    int
	tail    int
	name    string
	engine  string
	log     observability.Logger
	metrics *telemetry.RuntimeMetrics
}

// NewEventQueue builds a queue with the given capacity. The name tags log and
// metric records ("init" or "run").
func NewEventQueue(name, engineID string, capacity int, log observability.Logger, metrics *telemetry.RuntimeMetrics) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = observability.Noop()
	}
	return &EventQueue{
		slots:   make([]*fb.EventEntry, capacity),
		head:    0,
		tail:    0,
		name:    name,
		engine:  engineID,
		log:     log,
		metrics: metrics,
	}
}

// Cap reports the queue capacity.
func (q *EventQueue) Cap() int { return len(q.slots) }

// TryEnqueue appends the entry in FIFO order. It reports false when the queue
// is full; the entry is then dropped and an error is logged.
func (q *EventQueue) TryEnqueue(e fb.EventEntry) bool {
	q.mu.Lock()
	if q.slots[q.tail] != nil {
		q.mu.Unlock()
		q.log.Error("Event queue is full, event dropped",
			observability.String("queue", q.name),
			observability.String("engine_id", q.engine))
		q.metrics.RecordDrop(q.engine, q.name)
		return false
	}
	entry := e
	q.slots[q.tail] = &entry
	q.tail++
	if q.tail == len(q.slots) {
		q.tail = 0
	}
	q.mu.Unlock()
	return true
}

// TryDequeue removes and returns the entry at the head, or reports false when
// the queue is empty.
func (q *EventQueue) TryDequeue() (fb.EventEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot := q.slots[q.head]
	if slot == nil {
		return fb.EventEntry{}, false
	}
	q.slots[q.head] = nil
	q.head++
	if q.head == len(q.slots) {
		q.head = 0
	}
	return *slot, true
}

// IsEmpty reports whether the head slot is vacant.
func (q *EventQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slots[q.head] == nil
}

// Clear vacates every slot and rewinds both indices.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.slots {
		q.slots[i] = nil
	}
	q.head = 0
	q.tail = 0
}
