package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/validation"
	"go.uber.org/zap"
)

type Options struct {
	// GatewayTimeout bounds each call to the order gateway and the cart.
	GatewayTimeout time.Duration
	// Now, when set, also becomes the registry clock so idle sweeps and flow
	// activity are measured on the same clock.
	Now func() time.Time
}

type Service struct {
	carts    CartStore
	orders   OrderGateway
	tracker  PaymentTracker
	rules    *validation.Rules
	calc     *pricing.Calculator
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func NewService(
	carts CartStore,
	orders OrderGateway,
	tracker PaymentTracker,
	rules *validation.Rules,
	calc *pricing.Calculator,
	registry *Registry,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *Service {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	registry.setClock(opts.Now)
	return &Service{
		carts:    carts,
		orders:   orders,
		tracker:  tracker,
		rules:    rules,
		calc:     calc,
		registry: registry,
		logger:   logger.Named("checkout"),
		metrics:  m,
		opts:     opts,
	}
}

func (s *Service) now() time.Time {
	return s.registry.clock()
}

// Begin enters checkout for userID. An empty cart returns ErrEmptyCart and no
// flow is created. Values the user entered in an earlier checkout are restored.
func (s *Service) Begin(ctx context.Context, userID string) (*Flow, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	shipping, pay, _ := s.registry.Draft(userID)
	f := newFlow(s, userID, cart, NewState(shipping, pay))
	s.registry.Add(f)
	s.metrics.CheckoutsStarted.Inc()

	logger.FromContext(ctx, s.logger).Info("checkout_begin",
		zap.String("checkout_id", f.ID()),
		zap.String("user_id", userID),
		zap.Int("item_count", cart.ItemCount()))
	return f, nil
}

// Get returns the user's flow. Flows of other users are reported as not found.
func (s *Service) Get(id, userID string) (*Flow, error) {
	f, ok := s.registry.Get(id)
	if !ok || f.UserID() != userID {
		return nil, ErrCheckoutNotFound
	}
	return f, nil
}

// Abandon discards a flow that is not waiting on a submission.
func (s *Service) Abandon(id, userID string) error {
	f, err := s.Get(id, userID)
	if err != nil {
		return err
	}
	if f.State().Processing {
		return ErrSubmissionInFlight
	}
	s.registry.Remove(id)
	return nil
}
