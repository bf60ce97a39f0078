package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

// refusals are the known decline reasons; anything else is ReasonUnknown.
var refusals = []string{
	"insufficient funds",
	"card expired",
	"transaction declined by issuer",
	"suspected fraud",
	"request cancelled by customer",
}

// Simulator stands in for the card gateway and the M-Pesa STK push API. It
// implements Charger, MobileMoney and StatusSource.
type Simulator struct {
	successPercent int
	latency        time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	pushes map[string]pendingPush
	now    func() time.Time

	// notify, if set, receives push outcomes the way a provider callback would.
	notify func(orderID string, r Report)
}

type pendingPush struct {
	readyAt time.Time
	report  Report
}

func NewSimulator(successRate float64, latency time.Duration) *Simulator {
	return &Simulator{
		successPercent: int(successRate * 100),
		latency:        latency,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		pushes:         make(map[string]pendingPush),
		now:            time.Now,
	}
}

// OnCallback delivers each push outcome to fn once its latency has passed.
func (s *Simulator) OnCallback(fn func(orderID string, r Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

func (s *Simulator) Charge(ctx context.Context, req Request) (Result, error) {
	select {
	case <-time.After(s.latency):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	r := s.outcome()
	if r.Status == d.PaymentStatusCompleted {
		return succeeded(r.TransactionID), nil
	}
	return failed(r.Reason), nil
}

func (s *Simulator) InitiatePush(_ context.Context, req Request) error {
	if req.Details.MpesaPhone == "" {
		return fmt.Errorf("%w: missing M-Pesa phone number", ErrInvalidRequest)
	}

	report := s.outcome()
	s.mu.Lock()
	s.pushes[req.OrderID] = pendingPush{readyAt: s.now().Add(s.latency), report: report}
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		time.AfterFunc(s.latency, func() { notify(req.OrderID, report) })
	}
	return nil
}

func (s *Simulator) GetPaymentStatus(_ context.Context, orderID string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	push, ok := s.pushes[orderID]
	if !ok || s.now().Before(push.readyAt) {
		return Report{Status: d.PaymentStatusPending}, nil
	}
	return push.report, nil
}

func (s *Simulator) outcome() Report {
	s.mu.Lock()
	roll := s.rng.Intn(100)
	s.mu.Unlock()
	return calcOutcome(roll, s.successPercent)
}

// calcOutcome maps a roll in [0,100) to a provider report. Rolls below
// successPercent succeed; the rest cycle through the known refusals with one
// slot for an unknown reason.
func calcOutcome(roll, successPercent int) Report {
	if roll < successPercent {
		return Report{Status: d.PaymentStatusCompleted, TransactionID: newTransactionID()}
	}
	idx := (roll - successPercent) % (len(refusals) + 1)
	if idx == 0 {
		return Report{Status: d.PaymentStatusFailed, Reason: ReasonUnknown}
	}
	return Report{Status: d.PaymentStatusFailed, Reason: refusals[idx-1]}
}

func newTransactionID() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
