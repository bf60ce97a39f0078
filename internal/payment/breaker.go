package payment

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	// MaxFailures consecutive provider errors open the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

func newBreaker[T any](name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[T] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BreakerCharger guards a Charger. Declines are successful calls; only
// provider errors count against the breaker.
type BreakerCharger struct {
	next Charger
	cb   *gobreaker.CircuitBreaker[Result]
}

func NewBreakerCharger(next Charger, cfg BreakerConfig, logger *zap.Logger) *BreakerCharger {
	return &BreakerCharger{next: next, cb: newBreaker[Result]("card-charge", cfg, logger)}
}

func (b *BreakerCharger) Charge(ctx context.Context, req Request) (Result, error) {
	return b.cb.Execute(func() (Result, error) {
		return b.next.Charge(ctx, req)
	})
}

func (b *BreakerCharger) State() gobreaker.State {
	return b.cb.State()
}

type BreakerMobileMoney struct {
	next MobileMoney
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerMobileMoney(next MobileMoney, cfg BreakerConfig, logger *zap.Logger) *BreakerMobileMoney {
	return &BreakerMobileMoney{next: next, cb: newBreaker[struct{}]("mpesa-push", cfg, logger)}
}

func (b *BreakerMobileMoney) InitiatePush(ctx context.Context, req Request) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.InitiatePush(ctx, req)
	})
	return err
}

type BreakerStatusSource struct {
	next StatusSource
	cb   *gobreaker.CircuitBreaker[Report]
}

func NewBreakerStatusSource(next StatusSource, cfg BreakerConfig, logger *zap.Logger) *BreakerStatusSource {
	return &BreakerStatusSource{next: next, cb: newBreaker[Report]("mpesa-status", cfg, logger)}
}

func (b *BreakerStatusSource) GetPaymentStatus(ctx context.Context, orderID string) (Report, error) {
	return b.cb.Execute(func() (Report, error) {
		return b.next.GetPaymentStatus(ctx, orderID)
	})
}
