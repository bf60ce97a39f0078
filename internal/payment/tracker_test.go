package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chargerFunc func(ctx context.Context, req Request) (Result, error)

func (f chargerFunc) Charge(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

type mockMobile struct {
	mu     sync.Mutex
	err    error
	pushes []string
}

func (m *mockMobile) InitiatePush(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, req.OrderID)
	return m.err
}

// scriptedStatus replays reports in order and repeats the last one.
type scriptedStatus struct {
	mu      sync.Mutex
	reports []Report
	errs    []error
	polls   int
}

func (s *scriptedStatus) GetPaymentStatus(context.Context, string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.polls, len(s.reports)-1)
	s.polls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.reports[i], err
}

type statusRecorder struct {
	mu   sync.Mutex
	seen []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

// expect waits for the final callback, which runs after the handle resolves.
func (r *statusRecorder) expect(t *testing.T, want ...Status) {
	t.Helper()
	assert.Eventually(t, func() bool { return len(r.statuses()) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, r.statuses())
}

func (r *statusRecorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.seen...)
}

func testConfig() Config {
	return Config{MaxWait: 2 * time.Second, PollInterval: 5 * time.Millisecond, ChargeTimeout: time.Second}
}

func newTestTracker(charger Charger, mobile MobileMoney, status StatusSource, cfg Config) *Tracker {
	return NewTracker(charger, mobile, status, cfg, zap.NewNop(), metrics.NewNop())
}

func cardRequest() Request {
	return Request{
		OrderID:     uuid.NewString(),
		OrderNumber: "ORD-20260314-ABC123",
		Method:      d.PaymentCard,
		Details:     d.PaymentInfo{Method: d.PaymentCard, CardNumber: "4111111111111111"},
		Amount:      decimal.NewFromInt(1660),
		Currency:    "KES",
	}
}

func mpesaRequest() Request {
	req := cardRequest()
	req.Method = d.PaymentMpesa
	req.Details = d.PaymentInfo{Method: d.PaymentMpesa, MpesaPhone: "0712345678"}
	return req
}

func waitResult(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	require.NoError(t, err, "payment did not resolve in time")
	return r
}

func TestStart_CardSuccess(t *testing.T) {
	charger := chargerFunc(func(context.Context, Request) (Result, error) {
		return succeeded("TXN-42"), nil
	})
	tr := newTestTracker(charger, nil, nil, testConfig())
	rec := &statusRecorder{}

	h, err := tr.Start(context.Background(), cardRequest(), rec.record)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.True(t, r.Success)
	assert.Equal(t, StatusSucceeded, r.Status)
	assert.Equal(t, "TXN-42", r.TransactionID)
	rec.expect(t, StatusProcessing, StatusSucceeded)
	assert.Equal(t, StatusSucceeded, h.Status())
}

func TestStart_CardDeclineWithoutReason(t *testing.T) {
	charger := chargerFunc(func(context.Context, Request) (Result, error) {
		return Result{Status: StatusFailed}, nil
	})
	tr := newTestTracker(charger, nil, nil, testConfig())

	h, err := tr.Start(context.Background(), cardRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.False(t, r.Success)
	assert.Equal(t, ReasonDeclined, r.Reason)
}

func TestStart_CardProviderError(t *testing.T) {
	charger := chargerFunc(func(context.Context, Request) (Result, error) {
		return Result{}, errors.New("connection refused")
	})
	tr := newTestTracker(charger, nil, nil, testConfig())

	h, err := tr.Start(context.Background(), cardRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Reason, "payment provider unavailable")
	assert.Contains(t, r.Reason, "connection refused")
}

func TestStart_CardChargeTimeout(t *testing.T) {
	charger := chargerFunc(func(ctx context.Context, _ Request) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	cfg := testConfig()
	cfg.ChargeTimeout = 20 * time.Millisecond
	tr := newTestTracker(charger, nil, nil, cfg)

	h, err := tr.Start(context.Background(), cardRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.Equal(t, "card authorization timed out", r.Reason)
}

func TestStart_MpesaPollsUntilCompleted(t *testing.T) {
	mobile := &mockMobile{}
	status := &scriptedStatus{reports: []Report{
		{Status: d.PaymentStatusPending},
		{Status: d.PaymentStatusPending},
		{Status: d.PaymentStatusCompleted, TransactionID: "MPESA-7"},
	}}
	tr := newTestTracker(nil, mobile, status, testConfig())
	rec := &statusRecorder{}
	req := mpesaRequest()

	h, err := tr.Start(context.Background(), req, rec.record)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.True(t, r.Success)
	assert.Equal(t, "MPESA-7", r.TransactionID)
	assert.Equal(t, []string{req.OrderID}, mobile.pushes)
	assert.Equal(t, 3, status.polls)
	rec.expect(t, StatusProcessing, StatusSucceeded)
}

func TestStart_MpesaFailedReport(t *testing.T) {
	status := &scriptedStatus{reports: []Report{{Status: d.PaymentStatusFailed, Reason: "insufficient funds"}}}
	tr := newTestTracker(nil, &mockMobile{}, status, testConfig())

	h, err := tr.Start(context.Background(), mpesaRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.Equal(t, "insufficient funds", r.Reason)
}

func TestStart_MpesaPollErrorsAreRetried(t *testing.T) {
	status := &scriptedStatus{
		reports: []Report{{}, {Status: d.PaymentStatusCompleted, TransactionID: "MPESA-8"}},
		errs:    []error{errors.New("gateway timeout")},
	}
	tr := newTestTracker(nil, &mockMobile{}, status, testConfig())

	h, err := tr.Start(context.Background(), mpesaRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.True(t, r.Success)
	assert.Equal(t, "MPESA-8", r.TransactionID)
}

func TestStart_MpesaPushError(t *testing.T) {
	rec := &statusRecorder{}
	tr := newTestTracker(nil, &mockMobile{err: errors.New("stk push rejected")}, &scriptedStatus{}, testConfig())

	h, err := tr.Start(context.Background(), mpesaRequest(), rec.record)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.Contains(t, r.Reason, "stk push rejected")
	rec.expect(t, StatusFailed)
}

func TestStart_MaxWaitTimesOut(t *testing.T) {
	status := &scriptedStatus{reports: []Report{{Status: d.PaymentStatusPending}}}
	cfg := testConfig()
	cfg.MaxWait = 50 * time.Millisecond
	tr := newTestTracker(nil, &mockMobile{}, status, cfg)

	h, err := tr.Start(context.Background(), mpesaRequest(), nil)
	require.NoError(t, err)

	r := waitResult(t, h)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, ReasonTimeout, r.Reason)
}

func TestHandle_Cancel(t *testing.T) {
	status := &scriptedStatus{reports: []Report{{Status: d.PaymentStatusPending}}}
	tr := newTestTracker(nil, &mockMobile{}, status, testConfig())

	h, err := tr.Start(context.Background(), mpesaRequest(), nil)
	require.NoError(t, err)
	h.Cancel()

	r := waitResult(t, h)
	assert.Equal(t, ReasonCancelled, r.Reason)
}

func TestStart_OutlivesCallerContext(t *testing.T) {
	status := &scriptedStatus{reports: []Report{
		{Status: d.PaymentStatusPending},
		{Status: d.PaymentStatusCompleted, TransactionID: "MPESA-9"},
	}}
	tr := newTestTracker(nil, &mockMobile{}, status, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	h, err := tr.Start(ctx, mpesaRequest(), nil)
	require.NoError(t, err)
	cancel()

	r := waitResult(t, h)
	assert.True(t, r.Success)
}

func TestStart_InvalidRequest(t *testing.T) {
	tr := newTestTracker(nil, nil, nil, testConfig())

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"malformed order id", func(r *Request) { r.OrderID = "not-a-uuid" }},
		{"empty order id", func(r *Request) { r.OrderID = "" }},
		{"unknown method", func(r *Request) { r.Method = "paypal" }},
		{"zero amount", func(r *Request) { r.Amount = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cardRequest()
			tt.mutate(&req)

			h, err := tr.Start(context.Background(), req, nil)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, h)
		})
	}
}

func TestHandle_WaitGivesUpWithoutCancelling(t *testing.T) {
	release := make(chan struct{})
	charger := chargerFunc(func(context.Context, Request) (Result, error) {
		<-release
		return succeeded("TXN-1"), nil
	})
	tr := newTestTracker(charger, nil, nil, testConfig())

	h, err := tr.Start(context.Background(), cardRequest(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, resolved := h.Result()
	assert.False(t, resolved)

	close(release)
	r := waitResult(t, h)
	assert.True(t, r.Success)
}
