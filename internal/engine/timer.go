package engine

import (
	"sync"
	"time"
)

// CycleTimer raises the engine's suspend signal once per period. The signal
// channel has capacity one, so ticks that arrive while a previous tick is
// still pending collapse; the collapse callback runs instead, letting the
// engine account for the overrun without unbounded tick debt.
type CycleTimer struct {
	period     time.Duration
	signal     chan<- struct{}
	onCollapse func()

	mu     sync.Mutex
	ticker *time.Ticker
	stopc  chan struct{}
}

// NewCycleTimer builds a timer for the given period. onCollapse may be nil.
func NewCycleTimer(period time.Duration, signal chan<- struct{}, onCollapse func()) *CycleTimer {
	return &CycleTimer{
		period:     period,
		signal:     signal,
		onCollapse: onCollapse,
		ticker:     nil,
		stopc:      make(chan struct{}),
	}
}

// Start arms the timer, or re-aligns its phase to now when already armed.
func (t *CycleTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.stopc:
		return
	default:
	}
	if t.ticker != nil {
		t.ticker.Reset(t.period)
		return
	}
	t.ticker = time.NewTicker(t.period)
	go t.loop(t.ticker)
}

// Stop halts the timer permanently. Safe to call more than once.
func (t *CycleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.stopc:
		return
	default:
	}
	close(t.stopc)
	if t.ticker != nil {
		t.ticker.Stop()
	}
}

func (t *CycleTimer) loop(ticker *time.Ticker) {
	for {
		select {
		case <-t.stopc:
			return
		case <-ticker.C:
			select {
			case t.signal <- struct{}{}:
			default:
				if t.onCollapse != nil {
					t.onCollapse()
				}
			}
		}
	}
}
