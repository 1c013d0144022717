package engine

import (
	"testing"

	"github.com/fbflow/fbflow/internal/fb"
	"github.com/fbflow/fbflow/internal/iec"
	"github.com/fbflow/fbflow/internal/testutil"
)

type nopFB struct {
	name string
}

func (f *nopFB) InstanceName() string { return f.name }

func (f *nopFB) InterfaceSpec() *fb.InterfaceSpec {
	return &fb.InterfaceSpec{
		EventInputs: []string{"REQ"},
		DataOutputs: []fb.DataPort{{Name: "OUT", Type: iec.TypeDINT}},
	}
}

func (f *nopFB) ReceiveInputEvent(int, fb.Execution) {}

func TestQueueFIFOAcrossWrap(t *testing.T) {
	log := testutil.NewRecordingLogger()
	q := NewEventQueue("run", "test", 4, log, nil)

	blocks := make([]*nopFB, 6)
	for i := range blocks {
		blocks[i] = &nopFB{name: "fb"}
	}

	for i := 0; i < 3; i++ {
		if !q.TryEnqueue(fb.EventEntry{FB: blocks[i], Port: i}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	for i := 0; i < 2; i++ {
		entry, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("dequeue %d returned empty", i)
		}
		if entry.FB != blocks[i] || entry.Port != i {
			t.Fatalf("dequeue %d out of order: got port %d", i, entry.Port)
		}
	}
	// Wrap the ring.
	for i := 3; i < 6; i++ {
		if !q.TryEnqueue(fb.EventEntry{FB: blocks[i], Port: i}) {
			t.Fatalf("enqueue %d rejected after wrap", i)
		}
	}
	for i := 2; i < 6; i++ {
		entry, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("dequeue %d returned empty", i)
		}
		if entry.Port != i {
			t.Fatalf("FIFO violated: expected port %d, got %d", i, entry.Port)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after draining")
	}
}

func TestQueueDropsOnFullAndLogs(t *testing.T) {
	log := testutil.NewRecordingLogger()
	q := NewEventQueue("run", "test", 4, log, nil)
	blk := &nopFB{name: "fb"}

	accepted := 0
	for i := 0; i < 6; i++ {
		if q.TryEnqueue(fb.EventEntry{FB: blk, Port: i}) {
			accepted++
		}
	}
	if accepted != 4 {
		t.Fatalf("accepted = %d, want 4", accepted)
	}
	if got := log.CountMessage("error", "Event queue is full"); got != 2 {
		t.Fatalf("drop log count = %d, want 2", got)
	}

	delivered := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		delivered++
	}
	if delivered != 4 {
		t.Fatalf("delivered = %d, want 4", delivered)
	}
}

func TestQueueDequeueEmpty(t *testing.T) {
	q := NewEventQueue("run", "test", 2, testutil.NewRecordingLogger(), nil)
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("dequeue on empty queue reported an entry")
	}
	if !q.IsEmpty() {
		t.Fatal("fresh queue should report empty")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewEventQueue("run", "test", 4, testutil.NewRecordingLogger(), nil)
	blk := &nopFB{name: "fb"}
	for i := 0; i < 3; i++ {
		q.TryEnqueue(fb.EventEntry{FB: blk, Port: i})
	}
	q.Clear()
	if !q.IsEmpty() {
		t.Fatal("queue should be empty after Clear")
	}
	// Capacity is fully available again.
	for i := 0; i < 4; i++ {
		if !q.TryEnqueue(fb.EventEntry{FB: blk, Port: i}) {
			t.Fatalf("enqueue %d rejected after Clear", i)
		}
	}
	entry, ok := q.TryDequeue()
	if !ok || entry.Port != 0 {
		t.Fatalf("expected port 0 first after Clear, got %v ok=%v", entry.Port, ok)
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewEventQueue("run", "test", 0, nil, nil)
	if q.Cap() != DefaultQueueCapacity {
		t.Fatalf("capacity = %d, want %d", q.Cap(), DefaultQueueCapacity)
	}
}
