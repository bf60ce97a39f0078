package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

var ErrNotTerminal = errors.New("only completed or failed reports can be recorded")

// RedisStatusStore keeps provider callbacks for mobile money payments. The
// first terminal report for an order wins; later ones are ignored.
type RedisStatusStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStatusStore(client redis.Cmdable, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStatusStore{client: client, ttl: ttl}
}

// Record stores a terminal report. It returns false when a report for the
// order was already stored.
func (s *RedisStatusStore) Record(ctx context.Context, orderID string, r payment.Report) (bool, error) {
	if !r.Status.IsTerminal() {
		return false, ErrNotTerminal
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("marshal payment report failed: %w", err)
	}

	stored, err := s.client.SetNX(ctx, statusKey(orderID), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return stored, nil
}

func (s *RedisStatusStore) GetPaymentStatus(ctx context.Context, orderID string) (payment.Report, error) {
	data, err := s.client.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.Report{Status: d.PaymentStatusPending}, nil
	}
	if err != nil {
		return payment.Report{}, fmt.Errorf("redis get failed: %w", err)
	}

	var r payment.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return payment.Report{}, fmt.Errorf("unmarshal payment report failed: %w", err)
	}
	return r, nil
}

func statusKey(orderID string) string {
	return fmt.Sprintf("payment:status:%s", orderID)
}
