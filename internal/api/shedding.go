package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// LoadShedder bounds the number of summaries generated at once. Requests
// beyond the bound wait up to the queue timeout and are then refused.
type LoadShedder struct {
	slots    chan struct{}
	timeout  time.Duration
	inFlight int64
	shed     uint64
}

// NewLoadShedder admits max concurrent requests; max <= 0 admits everything.
func NewLoadShedder(max int, timeout time.Duration) *LoadShedder {
	ls := &LoadShedder{timeout: timeout}
	if max > 0 {
		ls.slots = make(chan struct{}, max)
	}
	return ls
}

// Acquire waits for a slot. It returns false when the wait timed out or the
// request was cancelled.
func (ls *LoadShedder) Acquire(r *http.Request) bool {
	if ls.slots == nil {
		return true
	}
	select {
	case ls.slots <- struct{}{}:
		atomic.AddInt64(&ls.inFlight, 1)
		return true
	default:
	}

	timer := time.NewTimer(ls.timeout)
	defer timer.Stop()
	select {
	case ls.slots <- struct{}{}:
		atomic.AddInt64(&ls.inFlight, 1)
		return true
	case <-timer.C:
	case <-r.Context().Done():
	}
	atomic.AddUint64(&ls.shed, 1)
	return false
}

// Release frees a slot taken by Acquire.
func (ls *LoadShedder) Release() {
	if ls.slots == nil {
		return
	}
	<-ls.slots
	atomic.AddInt64(&ls.inFlight, -1)
}

// Stats reports current and cumulative counts.
func (ls *LoadShedder) Stats() (inFlight int64, shed uint64) {
	return atomic.LoadInt64(&ls.inFlight), atomic.LoadUint64(&ls.shed)
}

// Middleware applies the bound to next.
func (ls *LoadShedder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ls.Acquire(r) {
			w.Header().Set("Retry-After", strconv.Itoa(int(ls.timeout.Seconds())))
			WriteJSON(w, ErrorResponse{Error: "Service temporarily overloaded. Please retry.", Code: "OVERLOADED"},
				http.StatusServiceUnavailable)
			return
		}
		defer ls.Release()
		next.ServeHTTP(w, r)
	})
}
