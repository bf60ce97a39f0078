package payment

import (
	"context"
	"sync"
)

// Handle is one in-flight payment resolution. It resolves exactly once.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	result   Result
	onStatus func(Status)
}

func newHandle(cancel context.CancelFunc, onStatus func(Status)) *Handle {
	return &Handle{
		done:     make(chan struct{}),
		cancel:   cancel,
		status:   StatusPending,
		onStatus: onStatus,
	}
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the payment resolves or ctx ends. Giving up on the wait
// does not cancel the payment.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		r, _ := h.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) Result() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.status.IsTerminal()
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Cancel stops waiting on the provider; the handle resolves failed.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	if h.status.IsTerminal() || h.status == s {
		h.mu.Unlock()
		return
	}
	h.status = s
	h.mu.Unlock()

	if h.onStatus != nil {
		h.onStatus(s)
	}
}

func (h *Handle) resolve(r Result) {
	h.mu.Lock()
	if h.status.IsTerminal() {
		h.mu.Unlock()
		return
	}
	h.status = r.Status
	h.result = r
	h.mu.Unlock()

	close(h.done)
	if h.onStatus != nil {
		h.onStatus(r.Status)
	}
}
