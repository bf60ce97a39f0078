package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart/cache"
	"github.com/fjod/storefront/internal/cart/repository"
	"github.com/fjod/storefront/internal/catalog"
	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Summary is the read-only view the navigation badge needs.
type Summary struct {
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

type Options struct {
	ReservationTTL time.Duration
	Currency       string
	Now            func() time.Time
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products catalog.ProductReader
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options

	sfg   singleflight.Group // Prevents cache stampede
	locks sync.Map           // userID -> *sync.Mutex, serializes read-modify-write
}

func NewCartService(
	repo repository.CartRepository,
	c cache.CartCache,
	products catalog.ProductReader,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *CartService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 15 * time.Minute
	}
	return &CartService{
		repo:     repo,
		cache:    c,
		products: products,
		logger:   logger.Named("cart"),
		metrics:  m,
		opts:     opts,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*d.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			s.metrics.CartCacheLookups.WithLabelValues("hit").Inc()
			return cart, nil
		}

		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.CartCacheLookups.WithLabelValues("miss").Inc()
		} else {
			s.metrics.CartCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		// held across load and Set so a concurrent clear cannot be undone by a stale fill
		unlock := s.lock(userID)
		defer unlock()

		cart, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, userID, cart); err != nil {
			s.logger.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the cart
	return v.(*d.Cart).Clone(), nil
}

func (s *CartService) Summary(ctx context.Context, userID string) (Summary, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{ItemCount: cart.ItemCount(), Total: cart.Total(), Currency: s.opts.Currency}, nil
}

// AddItem captures the catalog price at the time the product is added.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*d.Cart, error) {
	if quantity < d.MinQuantity {
		return nil, ErrInvalidQuantity
	}
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("lookup product %d: %w", productID, err)
	}

	return s.mutate(ctx, userID, func(cart *d.Cart, now time.Time) error {
		cart.AddItem(*product, quantity, now, s.opts.ReservationTTL)
		return nil
	})
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*d.Cart, error) {
	return s.mutate(ctx, userID, func(cart *d.Cart, now time.Time) error {
		return cart.UpdateQuantity(productID, quantity, now, s.opts.ReservationTTL)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) (*d.Cart, error) {
	return s.mutate(ctx, userID, func(cart *d.Cart, now time.Time) error {
		return cart.RemoveItem(productID, now)
	})
}

// ClearCart empties the cart. Clearing a cart that does not exist succeeds.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	unlock := s.lock(userID)
	defer unlock()

	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) mutate(ctx context.Context, userID string, fn func(*d.Cart, time.Time) error) (*d.Cart, error) {
	unlock := s.lock(userID)
	defer unlock()

	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(cart, s.opts.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		s.logger.Error("repo save cart failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(userID)
	return cart, nil
}

// load reads from the repository; a missing cart is an empty one.
func (s *CartService) load(ctx context.Context, userID string) (*d.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart = d.NewCart(userID, s.opts.Now())
		cart.ID = uuid.NewString()
		return cart, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) lock(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
