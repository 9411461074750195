package engine

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/directory"
	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
)

type timerKind int

const (
	timerDispatch timerKind = iota
	timerEscalation
	timerRetry
	timerExpiry
)

func (k timerKind) String() string {
	switch k {
	case timerDispatch:
		return "dispatch"
	case timerEscalation:
		return "escalation"
	case timerRetry:
		return "retry"
	case timerExpiry:
		return "expiry"
	}
	return "unknown"
}

// timerItem is one scheduled piece of future work for an alert. Items carry
// everything needed to act without re-deriving it from wall-clock state, so a
// re-evaluated item stays idempotent.
type timerItem struct {
	due     time.Time
	seq     uint64
	kind    timerKind
	alertID uuid.UUID

	// escalation level to evaluate
	level int

	// retry payload
	recipient   directory.Recipient
	pairChannel models.Channel // attempt chain identity
	viaChannel  models.Channel // channel actually used (override applies here)
	attempt     int            // attempt number to record
	retryCount  int            // retries consumed so far for this chain
}

// timerHeap is a min-heap of timer items ordered by due time; the sequence
// number keeps pops stable for items due at the same instant.
type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) {
	*h = append(*h, x.(*timerItem))
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// schedule queues a timer item and wakes the scheduler.
func (e *Engine) schedule(item *timerItem) {
	e.mu.Lock()
	e.seq++
	item.seq = e.seq
	heap.Push(&e.heap, item)
	metrics.TimerQueueDepth.Set(float64(len(e.heap)))
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// popDue removes and returns every item due at or before now.
func (e *Engine) popDue(now time.Time) []*timerItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	var due []*timerItem
	for len(e.heap) > 0 && !e.heap[0].due.After(now) {
		due = append(due, heap.Pop(&e.heap).(*timerItem))
	}
	metrics.TimerQueueDepth.Set(float64(len(e.heap)))
	return due
}

// nextDue returns how long until the earliest item is due.
func (e *Engine) nextDue(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.heap) == 0 {
		return time.Hour
	}
	wait := e.heap[0].due.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// scheduler waits for the next due timer and hands due items to the worker
// pool. One scheduler feeds all workers; per-alert serialization happens in
// the executors, so unrelated alerts never contend here.
func (e *Engine) scheduler() {
	defer e.wg.Done()
	for {
		timer := time.NewTimer(e.nextDue(e.now()))
		select {
		case <-e.ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
			for _, item := range e.popDue(e.now()) {
				select {
				case e.tasks <- item:
				case <-e.ctx.Done():
					return
				}
			}
		}
	}
}

// worker executes due timer items until context is cancelled.
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.logger.Infof("Worker %d stopped", id)
			return
		case item := <-e.tasks:
			e.execute(item)
		}
	}
}

// runDue drains and executes everything currently due, synchronously. Tests
// drive the engine clock through this instead of the scheduler goroutine.
func (e *Engine) runDue() {
	for {
		due := e.popDue(e.now())
		if len(due) == 0 {
			return
		}
		for _, item := range due {
			e.execute(item)
		}
	}
}
