package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/order/repository"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	expressDeliveryDays  = 2
	standardDeliveryDays = 5
	// order numbers are random, so a collision is retried with a new one
	maxNumberAttempts = 3
)

var (
	ErrNoItems      = errors.New("order must contain at least one item")
	ErrInvalidTotal = errors.New("order total does not match its parts")
)

var tracer = otel.Tracer("github.com/fjod/storefront/internal/order")

// CreateInput is the snapshot handed over by checkout. Only the payment method
// is taken from Payment; card details are never stored.
type CreateInput struct {
	CustomerID string
	Items      []d.OrderItem
	Pricing    pricing.Breakdown
	Payment    d.PaymentInfo
	Shipping   d.ShippingInfo
}

type Service struct {
	repo      repository.OrderRepository
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(repo repository.OrderRepository, publisher Publisher, logger *zap.Logger, m *metrics.Metrics) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("order"),
		metrics:   m,
		now:       time.Now,
	}
}

func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (ref *d.OrderRef, err error) {
	ctx, span := tracer.Start(ctx, "order.CreateOrder")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.OrdersCreated.WithLabelValues("error").Inc()
		} else {
			s.metrics.OrdersCreated.WithLabelValues("ok").Inc()
		}
		span.End()
	}()

	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}
	p := in.Pricing
	if !p.Total.Equal(p.Subtotal.Add(p.ShippingCost).Add(p.VATAmount)) {
		return nil, ErrInvalidTotal
	}

	now := s.now()
	shipping := in.Shipping.Normalized()
	order := &d.Order{
		ID:           uuid.New(),
		CustomerID:   in.CustomerID,
		Items:        append([]d.OrderItem(nil), in.Items...),
		Subtotal:     p.Subtotal,
		ShippingCost: p.ShippingCost,
		VATAmount:    p.VATAmount,
		TotalAmount:  p.Total,
		Currency:     p.Currency,
		Payment: d.OrderPayment{
			Method: in.Payment.Method,
			Status: d.PaymentStatusPending,
			Amount: p.Total,
		},
		Shipping: shipping,
		Delivery: d.DeliveryInfo{
			Method:            shipping.ShippingMethod,
			EstimatedDelivery: EstimatedDelivery(now, shipping.ShippingMethod),
		},
		OrderDate: now,
		History:   []d.HistoryEntry{{Timestamp: now, Status: d.PaymentStatusPending, Note: "Order placed"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	for attempt := 1; ; attempt++ {
		order.OrderNumber = NewOrderNumber(now)
		err = s.repo.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateOrder) || attempt == maxNumberAttempts {
			return nil, fmt.Errorf("create order: %w", err)
		}
	}

	log := logger.FromContext(ctx, s.logger)
	log.Info("order_created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("customer_id", order.CustomerID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.String("payment_method", string(order.Payment.Method)))
	s.publish(ctx, newEvent(EventOrderCreated, order, "", now))

	return &d.OrderRef{ID: order.ID, OrderNumber: order.OrderNumber}, nil
}

func (s *Service) GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, customerID string) ([]*d.Order, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerID)
}

// RecordPayment appends a payment status to the order history. Terminal
// statuses publish an order event.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, status d.PaymentStatus, note, transactionID string) (*d.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	expected := order.Payment.Status
	now := s.now()
	if err := order.RecordPaymentStatus(status, note, transactionID, now); err != nil {
		return nil, err
	}

	err = s.repo.AppendPaymentStatus(ctx, id, repository.StatusChange{
		Expected:      expected,
		Entry:         order.History[len(order.History)-1],
		TransactionID: transactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment status: %w", err)
	}

	logger.FromContext(ctx, s.logger).Info("order_payment_status",
		zap.String("order_id", id.String()),
		zap.String("from", string(expected)),
		zap.String("to", string(status)))

	switch status {
	case d.PaymentStatusCompleted:
		s.publish(ctx, newEvent(EventPaymentCompleted, order, note, now))
	case d.PaymentStatusFailed:
		s.publish(ctx, newEvent(EventPaymentFailed, order, note, now))
	}
	return order, nil
}

// publish never fails the caller; the order is already persisted.
func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.FromContext(ctx, s.logger).Warn("order event publish failed",
			zap.String("event_type", ev.Type),
			zap.String("order_id", ev.OrderID.String()),
			zap.Error(err))
	}
}

func EstimatedDelivery(orderTime time.Time, method d.ShippingMethod) time.Time {
	if method == d.ShippingExpress {
		return orderTime.AddDate(0, 0, expressDeliveryDays)
	}
	return orderTime.AddDate(0, 0, standardDeliveryDays)
}

// NewOrderNumber formats ORD-YYYYMMDD-XXXXXX with six random hex characters.
func NewOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}
