package checkout

import (
	"context"
	"sync"
	"time"

	d "github.com/fjod/storefront/internal/domain"
)

type draft struct {
	shipping d.ShippingInfo
	payment  d.PaymentInfo
}

// Registry holds active flows by id and the last entered form values per user.
type Registry struct {
	idleTTL time.Duration
	now     func() time.Time

	mu     sync.Mutex
	flows  map[string]*Flow
	drafts map[string]draft
}

func NewRegistry(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry{
		idleTTL: idleTTL,
		now:     time.Now,
		flows:   make(map[string]*Flow),
		drafts:  make(map[string]draft),
	}
}

func (r *Registry) setClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) clock() time.Time {
	r.mu.Lock()
	now := r.now
	r.mu.Unlock()
	return now()
}

func (r *Registry) Add(f *Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[f.ID()] = f
}

func (r *Registry) Get(id string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	return f, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// SaveDraft remembers form values for the next checkout. Card secrets are
// dropped; only the cardholder name is kept.
func (r *Registry) SaveDraft(userID string, shipping d.ShippingInfo, p d.PaymentInfo) {
	p.CardNumber, p.ExpiryDate, p.CVV = "", "", ""

	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[userID] = draft{shipping: shipping, payment: p}
}

func (r *Registry) Draft(userID string) (d.ShippingInfo, d.PaymentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dr, ok := r.drafts[userID]
	return dr.shipping, dr.payment, ok
}

// Sweep drops flows idle for longer than the TTL and returns how many went.
func (r *Registry) Sweep() int {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, f := range r.flows {
		if idle, ok := f.idle(now); ok && idle > r.idleTTL {
			delete(r.flows, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
