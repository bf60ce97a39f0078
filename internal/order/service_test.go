package order

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/order/repository"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

type duplicateOnceRepository struct {
	*repository.MemoryRepository
	failures int
}

func (r *duplicateOnceRepository) CreateOrder(ctx context.Context, o *d.Order) error {
	if r.failures > 0 {
		r.failures--
		return repository.ErrDuplicateOrder
	}
	return r.MemoryRepository.CreateOrder(ctx, o)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(repo repository.OrderRepository, pub Publisher) (*Service, *metrics.Metrics) {
	m := metrics.NewNop()
	s := NewService(repo, pub, zap.NewNop(), m)
	s.now = func() time.Time { return fixedNow }
	return s, m
}

func testInput(method d.ShippingMethod) CreateInput {
	items := []d.OrderItem{
		{ProductID: 1, ProductName: "Kiondo Basket", Quantity: 2, UnitPrice: decimal.NewFromInt(500), Subtotal: decimal.NewFromInt(1000)},
	}
	return CreateInput{
		CustomerID: "user-1",
		Items:      items,
		Pricing:    pricing.ComputeBreakdown(pricing.DefaultRates(), decimal.NewFromInt(1000), method),
		Payment:    d.PaymentInfo{Method: d.PaymentMpesa, MpesaPhone: "0712345678"},
		Shipping:   d.ShippingInfo{FullName: "Wanjiru Kamau", City: "Nairobi", ShippingMethod: method},
	}
}

func TestCreateOrder_Snapshot(t *testing.T) {
	repo := repository.NewMemoryRepository()
	pub := &mockPublisher{}
	sut, m := newTestService(repo, pub)

	ref, err := sut.CreateOrder(context.Background(), testInput(d.ShippingExpress))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20260314-[0-9A-F]{6}$`), ref.OrderNumber)

	order, err := sut.GetOrderByID(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1660).Equal(order.TotalAmount))
	assert.True(t, decimal.NewFromInt(1660).Equal(order.Payment.Amount))
	assert.Equal(t, d.PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, fixedNow.AddDate(0, 0, 2), order.Delivery.EstimatedDelivery)
	assert.Equal(t, "Kenya", order.Shipping.Country)
	require.Len(t, order.History, 1)
	assert.Equal(t, d.PaymentStatusPending, order.History[0].Status)
	assert.Equal(t, []string{EventOrderCreated}, pub.types())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated.WithLabelValues("ok")))
}

func TestCreateOrder_StandardDeliveryFiveDays(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), nil)

	ref, err := sut.CreateOrder(context.Background(), testInput(d.ShippingStandard))
	require.NoError(t, err)

	order, err := sut.GetOrderByID(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, 5), order.Delivery.EstimatedDelivery)
	assert.True(t, decimal.NewFromInt(1360).Equal(order.TotalAmount))
}

func TestCreateOrder_RejectsBadInput(t *testing.T) {
	sut, m := newTestService(repository.NewMemoryRepository(), nil)

	in := testInput(d.ShippingExpress)
	in.Items = nil
	_, err := sut.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoItems)

	in = testInput(d.ShippingExpress)
	in.Pricing.Total = in.Pricing.Total.Add(decimal.NewFromInt(1))
	_, err = sut.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidTotal)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersCreated.WithLabelValues("error")))
}

func TestCreateOrder_RetriesNumberCollision(t *testing.T) {
	repo := &duplicateOnceRepository{MemoryRepository: repository.NewMemoryRepository(), failures: 2}
	sut, _ := newTestService(repo, nil)

	_, err := sut.CreateOrder(context.Background(), testInput(d.ShippingExpress))

	assert.NoError(t, err)
}

func TestCreateOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := &duplicateOnceRepository{MemoryRepository: repository.NewMemoryRepository(), failures: 3}
	sut, _ := newTestService(repo, nil)

	_, err := sut.CreateOrder(context.Background(), testInput(d.ShippingExpress))

	assert.ErrorIs(t, err, repository.ErrDuplicateOrder)
}

func TestCreateOrder_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{err: errors.New("kafka unavailable")}
	sut, _ := newTestService(repository.NewMemoryRepository(), pub)

	ref, err := sut.CreateOrder(context.Background(), testInput(d.ShippingExpress))

	require.NoError(t, err)
	assert.NotNil(t, ref)
}

func TestRecordPayment_AppendsHistoryAndPublishes(t *testing.T) {
	pub := &mockPublisher{}
	sut, _ := newTestService(repository.NewMemoryRepository(), pub)
	ctx := context.Background()
	ref, err := sut.CreateOrder(ctx, testInput(d.ShippingExpress))
	require.NoError(t, err)

	_, err = sut.RecordPayment(ctx, ref.ID, d.PaymentStatusProcessing, "Awaiting M-Pesa confirmation", "")
	require.NoError(t, err)
	order, err := sut.RecordPayment(ctx, ref.ID, d.PaymentStatusCompleted, "Payment confirmed", "QKX81HT2")
	require.NoError(t, err)

	assert.Equal(t, "QKX81HT2", order.Payment.TransactionID)
	stored, err := sut.GetOrderByID(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 3)
	assert.Equal(t, d.PaymentStatusCompleted, stored.History[2].Status)
	assert.Equal(t, []string{EventOrderCreated, EventPaymentCompleted}, pub.types())
}

func TestRecordPayment_TerminalCannotChange(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), nil)
	ctx := context.Background()
	ref, err := sut.CreateOrder(ctx, testInput(d.ShippingExpress))
	require.NoError(t, err)
	_, err = sut.RecordPayment(ctx, ref.ID, d.PaymentStatusFailed, "declined", "")
	require.NoError(t, err)

	_, err = sut.RecordPayment(ctx, ref.ID, d.PaymentStatusCompleted, "late", "X")

	assert.ErrorIs(t, err, d.ErrInvalidPaymentTransition)
}

func TestNewOrderNumber(t *testing.T) {
	a := NewOrderNumber(fixedNow)
	b := NewOrderNumber(fixedNow)

	assert.Regexp(t, `^ORD-20260314-[0-9A-F]{6}$`, a)
	assert.NotEqual(t, a, b)
}
