package payment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBreakerCharger_OpensOnProviderErrors(t *testing.T) {
	var calls atomic.Int32
	next := chargerFunc(func(context.Context, Request) (Result, error) {
		calls.Add(1)
		return Result{}, errors.New("connection reset")
	})
	b := NewBreakerCharger(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())

	for range 2 {
		_, err := b.Charge(context.Background(), cardRequest())
		require.Error(t, err)
	}
	_, err := b.Charge(context.Background(), cardRequest())

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerCharger_DeclinesDoNotTrip(t *testing.T) {
	next := chargerFunc(func(context.Context, Request) (Result, error) {
		return failed("insufficient funds"), nil
	})
	b := NewBreakerCharger(next, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())

	for range 5 {
		r, err := b.Charge(context.Background(), cardRequest())
		require.NoError(t, err)
		assert.Equal(t, "insufficient funds", r.Reason)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerMobileMoney_PassesThrough(t *testing.T) {
	mobile := &mockMobile{err: errors.New("stk unavailable")}
	b := NewBreakerMobileMoney(mobile, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())

	err := b.InitiatePush(context.Background(), mpesaRequest())
	assert.EqualError(t, err, "stk unavailable")

	err = b.InitiatePush(context.Background(), mpesaRequest())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, mobile.pushes, 1)
}

func TestBreakerStatusSource_ReturnsReport(t *testing.T) {
	status := &scriptedStatus{reports: []Report{{Status: d.PaymentStatusCompleted, TransactionID: "MPESA-1"}}}
	b := NewBreakerStatusSource(status, BreakerConfig{}, zap.NewNop())

	r, err := b.GetPaymentStatus(context.Background(), "order")

	require.NoError(t, err)
	assert.Equal(t, "MPESA-1", r.TransactionID)
}
