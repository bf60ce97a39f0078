package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/cart/cache"
	"github.com/fjod/storefront/internal/cart/repository"
	"github.com/fjod/storefront/internal/catalog"
	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCache struct {
	m    sync.RWMutex
	cart *d.Cart
	err  error
	sets atomic.Int32
}

func (m *mockCache) Get(context.Context, string) (*d.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart *d.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.sets.Add(1)
	m.cart = cart.Clone()
	return nil
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	return nil
}

func (m *mockCache) getCart() *d.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}

type slowRepository struct {
	*repository.MemoryRepository
	calls atomic.Int32
	delay time.Duration
}

func (s *slowRepository) GetCart(ctx context.Context, userID string) (*d.Cart, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.MemoryRepository.GetCart(ctx, userID)
}

// gatedRepository parks GetCart after the read until release is closed.
type gatedRepository struct {
	*repository.MemoryRepository
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRepository) GetCart(ctx context.Context, userID string) (*d.Cart, error) {
	cart, err := g.MemoryRepository.GetCart(ctx, userID)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return cart, err
}

type failingRepository struct {
	repository.CartRepository
	err error
}

func (f failingRepository) GetCart(context.Context, string) (*d.Cart, error) { return nil, f.err }

type mockProducts map[int64]d.Product

func (m mockProducts) GetProduct(_ context.Context, id int64) (*d.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

var testProducts = mockProducts{
	1: {ID: 1, Name: "Kiondo Basket", Price: decimal.NewFromInt(1850)},
	2: {ID: 2, Name: "Soapstone Bowl", Price: decimal.RequireFromString("650.50")},
}

func newTestService(repo repository.CartRepository, c cache.CartCache) (*CartService, *metrics.Metrics) {
	m := metrics.NewNop()
	return NewCartService(repo, c, testProducts, zap.NewNop(), m, Options{Currency: "KES"}), m
}

func TestGetCart_MissingCartIsEmpty(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), &mockCache{})

	cart, err := sut.GetCart(context.Background(), "user1")

	require.NoError(t, err)
	assert.Equal(t, "user1", cart.UserID)
	assert.True(t, cart.IsEmpty())
}

func TestGetCart_CacheHit(t *testing.T) {
	cached := d.NewCart("user1", time.Now())
	cached.AddItem(testProducts[1], 2, time.Now(), time.Minute)
	mc := &mockCache{cart: cached}
	sut, m := newTestService(repository.NewMemoryRepository(), mc)

	cart, err := sut.GetCart(context.Background(), "user1")

	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartCacheLookups.WithLabelValues("hit")))
}

func TestGetCart_MissPopulatesCache(t *testing.T) {
	mc := &mockCache{}
	sut, m := newTestService(repository.NewMemoryRepository(), mc)
	_, err := sut.AddItem(context.Background(), "user1", 1, 1)
	require.NoError(t, err)

	_, err = sut.GetCart(context.Background(), "user1")

	require.NoError(t, err)
	require.NotNil(t, mc.getCart())
	assert.Len(t, mc.getCart().Items, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartCacheLookups.WithLabelValues("miss")))
}

func TestGetCart_CacheErrorFallsBackToRepo(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	sut, m := newTestService(repository.NewMemoryRepository(), mc)

	_, err := sut.GetCart(context.Background(), "user1")

	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartCacheLookups.WithLabelValues("error")))
}

func TestGetCart_RepoError(t *testing.T) {
	boom := errors.New("mongo down")
	sut, _ := newTestService(failingRepository{err: boom}, &mockCache{})

	_, err := sut.GetCart(context.Background(), "user1")

	assert.ErrorIs(t, err, boom)
}

func TestGetCart_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	repo := &slowRepository{MemoryRepository: repository.NewMemoryRepository(), delay: 50 * time.Millisecond}
	sut, _ := newTestService(repo, cache.NopCache{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.GetCart(context.Background(), "user1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, repo.calls.Load(), int32(20))
}

func TestAddItem_CapturesCatalogPriceAndInvalidatesCache(t *testing.T) {
	mc := &mockCache{cart: d.NewCart("user1", time.Now())}
	sut, _ := newTestService(repository.NewMemoryRepository(), mc)

	cart, err := sut.AddItem(context.Background(), "user1", 2, 3)

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Soapstone Bowl", cart.Items[0].ProductName)
	assert.True(t, decimal.RequireFromString("1951.5").Equal(cart.Total()))
	assert.Nil(t, mc.getCart())
}

func TestAddItem_ClampsAtTen(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "user1", 1, 7)
	require.NoError(t, err)
	cart, err := sut.AddItem(ctx, "user1", 1, 7)
	require.NoError(t, err)

	assert.Equal(t, 10, cart.Items[0].Quantity)
}

func TestAddItem_Errors(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})

	_, err := sut.AddItem(context.Background(), "user1", 99, 1)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = sut.AddItem(context.Background(), "user1", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateQuantity(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "user1", 1, 2)
	require.NoError(t, err)

	cart, err := sut.UpdateQuantity(ctx, "user1", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity, "q<1 leaves the line unchanged")

	cart, err = sut.UpdateQuantity(ctx, "user1", 1, 25)
	require.NoError(t, err)
	assert.Equal(t, 10, cart.Items[0].Quantity)

	_, err = sut.UpdateQuantity(ctx, "user1", 2, 3)
	assert.ErrorIs(t, err, d.ErrItemNotFound)
}

func TestRemoveItemAndSummary(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "user1", 1, 1)
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, "user1", 2, 2)
	require.NoError(t, err)

	_, err = sut.RemoveItem(ctx, "user1", 1)
	require.NoError(t, err)

	summary, err := sut.Summary(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.True(t, decimal.NewFromInt(1301).Equal(summary.Total))
	assert.Equal(t, "KES", summary.Currency)
}

func TestClearCart(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "user1", 1, 1)
	require.NoError(t, err)

	require.NoError(t, sut.ClearCart(ctx, "user1"))
	require.NoError(t, sut.ClearCart(ctx, "user1"), "clearing twice is fine")

	cart, err := sut.GetCart(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestConcurrentAdds_NoLostUpdates(t *testing.T) {
	sut, _ := newTestService(repository.NewMemoryRepository(), cache.NopCache{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.AddItem(ctx, "user1", 1, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := sut.GetCart(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 8, cart.Items[0].Quantity)
}

func TestClearCart_DuringCacheFillStaysCleared(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepository()
	seeded := d.NewCart("user1", time.Now())
	seeded.AddItem(testProducts[1], 1, time.Now(), time.Minute)
	seeded.AddItem(testProducts[2], 1, time.Now(), time.Minute)
	require.NoError(t, mem.SaveCart(ctx, seeded))

	repo := &gatedRepository{MemoryRepository: mem, read: make(chan struct{}), release: make(chan struct{})}
	mc := &mockCache{}
	sut, _ := newTestService(repo, mc)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = sut.GetCart(ctx, "user1")
	}()
	<-repo.read

	cleared := make(chan error, 1)
	go func() {
		defer wg.Done()
		cleared <- sut.ClearCart(ctx, "user1")
	}()

	// the clear waits for the in-flight fill instead of racing it
	select {
	case err := <-cleared:
		t.Fatalf("ClearCart finished while a cache fill was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(repo.release)
	wg.Wait()
	require.NoError(t, <-cleared)

	assert.Nil(t, mc.getCart())
	cart, err := sut.GetCart(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}
