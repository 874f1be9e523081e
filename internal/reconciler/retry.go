package reconciler

import (
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"

	"dashsync/internal/dashboard"
)

// retryRequest asks the loop to re-plan one key. Requests from superseded
// timers carry an outdated generation and are dropped.
type retryRequest struct {
	key        dashboard.IdentityKey
	generation uint64
}

// retryScheduler arms one timer per failing key. Delays come from a per-item
// exponential rate limiter. All methods except the timer callbacks are called
// from the controller loop only.
type retryScheduler struct {
	limiter workqueue.TypedRateLimiter[dashboard.IdentityKey]
	out     chan retryRequest

	stopOnce sync.Once
	stopped  chan struct{}

	timers      map[dashboard.IdentityKey]*time.Timer
	generations map[dashboard.IdentityKey]uint64
	nextGen     uint64
}

func newRetryScheduler(initial, max time.Duration) *retryScheduler {
	return &retryScheduler{
		limiter:     workqueue.NewTypedItemExponentialFailureRateLimiter[dashboard.IdentityKey](initial, max),
		out:         make(chan retryRequest),
		stopped:     make(chan struct{}),
		timers:      make(map[dashboard.IdentityKey]*time.Timer),
		generations: make(map[dashboard.IdentityKey]uint64),
	}
}

// requests delivers due retries.
func (s *retryScheduler) requests() <-chan retryRequest {
	return s.out
}

// attempts returns the number of the attempt that just completed.
func (s *retryScheduler) attempts(key dashboard.IdentityKey) int {
	return s.limiter.NumRequeues(key) + 1
}

// schedule arms a retry for key and returns its delay.
func (s *retryScheduler) schedule(key dashboard.IdentityKey) time.Duration {
	s.stopTimer(key)

	delay := s.limiter.When(key)
	s.nextGen++
	req := retryRequest{key: key, generation: s.nextGen}
	s.generations[key] = req.generation

	s.timers[key] = time.AfterFunc(delay, func() {
		select {
		case s.out <- req:
		case <-s.stopped:
		}
	})
	return delay
}

// current reports whether req belongs to the live series of its key.
func (s *retryScheduler) current(req retryRequest) bool {
	gen, ok := s.generations[req.key]
	return ok && gen == req.generation
}

// fired clears the timer of a delivered request.
func (s *retryScheduler) fired(key dashboard.IdentityKey) {
	delete(s.timers, key)
}

// forget ends the series of key and cancels its pending retry.
func (s *retryScheduler) forget(key dashboard.IdentityKey) {
	s.stopTimer(key)
	delete(s.generations, key)
	s.limiter.Forget(key)
}

// pending returns the number of armed timers.
func (s *retryScheduler) pending() int {
	return len(s.timers)
}

func (s *retryScheduler) stopTimer(key dashboard.IdentityKey) {
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// stop cancels every pending retry. Timers that already fired give up their send.
func (s *retryScheduler) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	for key := range s.timers {
		s.stopTimer(key)
	}
}
