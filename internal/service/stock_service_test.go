package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockProductRepository mirrors the store's conditional decrement: the
// stock check and the write happen under one lock, so concurrent callers
// observe the same all-or-nothing behavior as the SQL UPDATE.
type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) add(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *mockProductRepository) stockOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	m.add(p)
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProductRepository) List(ctx context.Context, category *domain.ProductCategory, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.products {
		if category != nil && p.Category != *category {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (m *mockProductRepository) Search(ctx context.Context, locale, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return nil, 0, nil
}

func (m *mockProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.Stock < quantity {
		return &repository.InsufficientStockError{
			ProductID: id,
			Requested: quantity,
			Available: p.Stock,
		}
	}
	p.Stock -= quantity
	p.SalesCount += quantity
	if p.Stock == 0 {
		p.Tag = domain.TagOutOfStock
	}
	return nil
}

func (m *mockProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Stock += quantity
	if p.Tag == domain.TagOutOfStock {
		p.Tag = domain.TagNone
	}
	return nil
}

func (m *mockProductRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.ViewCount++
	}
	return nil
}

func testProduct(name string, price string, stock int) *domain.Product {
	return &domain.Product{
		ID:       uuid.New(),
		Name:     domain.LocalizedText{"en": name},
		Price:    decimal.RequireFromString(price),
		Category: domain.CategoryElectronics,
		Tag:      domain.TagNone,
		Stock:    stock,
	}
}

func TestReserve_SnapshotsNameAndPrice(t *testing.T) {
	repo := newMockProductRepository()
	keyboard := testProduct("Keyboard", "49.99", 10)
	mouse := testProduct("Mouse", "19.90", 5)
	repo.add(keyboard)
	repo.add(mouse)

	svc := NewStockService(repo, zap.NewNop())

	reservation, err := svc.Reserve(context.Background(), []ReservationItem{
		{ProductID: keyboard.ID, Quantity: 2},
		{ProductID: mouse.ID, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, reservation.Lines, 2)

	assert.Equal(t, "Keyboard", reservation.Lines[0].Name)
	assert.True(t, reservation.Lines[0].Price.Equal(decimal.RequireFromString("49.99")))
	assert.True(t, reservation.Lines[0].Subtotal.Equal(decimal.RequireFromString("99.98")))
	assert.True(t, reservation.Lines[1].Subtotal.Equal(decimal.RequireFromString("59.70")))
	assert.True(t, reservation.Subtotal.Equal(decimal.RequireFromString("159.68")))

	assert.Equal(t, 8, repo.stockOf(keyboard.ID))
	assert.Equal(t, 2, repo.stockOf(mouse.ID))
}

func TestReserve_InsufficientStock(t *testing.T) {
	repo := newMockProductRepository()
	product := testProduct("Lamp", "15.00", 3)
	repo.add(product)

	svc := NewStockService(repo, zap.NewNop())

	_, err := svc.Reserve(context.Background(), []ReservationItem{
		{ProductID: product.ID, Quantity: 4},
	})
	require.Error(t, err)

	var insufficientErr *repository.InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, product.ID, insufficientErr.ProductID)
	assert.Equal(t, 4, insufficientErr.Requested)
	assert.Equal(t, 3, insufficientErr.Available)

	// Nothing was taken
	assert.Equal(t, 3, repo.stockOf(product.ID))
}

func TestReserve_ProductNotFound(t *testing.T) {
	repo := newMockProductRepository()
	svc := NewStockService(repo, zap.NewNop())

	_, err := svc.Reserve(context.Background(), []ReservationItem{
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	repo := newMockProductRepository()
	product := testProduct("Desk", "120.00", 10)
	repo.add(product)

	svc := NewStockService(repo, zap.NewNop())

	for _, quantity := range []int{0, -1} {
		_, err := svc.Reserve(context.Background(), []ReservationItem{
			{ProductID: product.ID, Quantity: quantity},
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
	assert.Equal(t, 10, repo.stockOf(product.ID))
}

func TestReserve_CompensatesAppliedItemsOnFailure(t *testing.T) {
	repo := newMockProductRepository()
	first := testProduct("Monitor", "199.00", 10)
	second := testProduct("Cable", "9.99", 1)
	repo.add(first)
	repo.add(second)

	svc := NewStockService(repo, zap.NewNop())

	// First item succeeds, second fails on stock; the first decrement
	// must be rolled back.
	_, err := svc.Reserve(context.Background(), []ReservationItem{
		{ProductID: first.ID, Quantity: 4},
		{ProductID: second.ID, Quantity: 2},
	})
	require.Error(t, err)

	var insufficientErr *repository.InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, second.ID, insufficientErr.ProductID)

	assert.Equal(t, 10, repo.stockOf(first.ID))
	assert.Equal(t, 1, repo.stockOf(second.ID))
}

func TestReserve_TagFlipsAtZeroStock(t *testing.T) {
	repo := newMockProductRepository()
	product := testProduct("Poster", "5.00", 2)
	repo.add(product)

	svc := NewStockService(repo, zap.NewNop())

	_, err := svc.Reserve(context.Background(), []ReservationItem{
		{ProductID: product.ID, Quantity: 2},
	})
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Stock)
	assert.Equal(t, domain.TagOutOfStock, stored.Tag)

	// Restoring stock clears the availability tag
	require.NoError(t, svc.Restore(context.Background(), []ReservationItem{
		{ProductID: product.ID, Quantity: 2},
	}))
	stored, err = repo.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Stock)
	assert.Equal(t, domain.TagNone, stored.Tag)
}

func TestRestore_ReturnsLastErrorButTriesAll(t *testing.T) {
	repo := newMockProductRepository()
	product := testProduct("Chair", "75.00", 0)
	repo.add(product)

	svc := NewStockService(repo, zap.NewNop())

	err := svc.Restore(context.Background(), []ReservationItem{
		{ProductID: uuid.New(), Quantity: 1}, // unknown product
		{ProductID: product.ID, Quantity: 3},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrProductNotFound))

	// The known product was still credited
	assert.Equal(t, 3, repo.stockOf(product.ID))
}

func TestConcurrentReserve_NeverOversells(t *testing.T) {
	repo := newMockProductRepository()
	product := testProduct("Limited Edition", "250.00", 7)
	repo.add(product)

	svc := NewStockService(repo, zap.NewNop())

	const attempts = 30
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), []ReservationItem{
				{ProductID: product.ID, Quantity: 1},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			var insufficientErr *repository.InsufficientStockError
			require.ErrorAs(t, err, &insufficientErr)
		}
	}

	assert.Equal(t, 7, succeeded)
	assert.Equal(t, 0, repo.stockOf(product.ID))
}

func TestProperty_ReserveRestoreRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("restoring a successful reservation returns stock to its initial level", prop.ForAll(
		func(initialStock int, quantity int) bool {
			repo := newMockProductRepository()
			product := testProduct("Widget", "10.00", initialStock)
			repo.add(product)

			svc := NewStockService(repo, zap.NewNop())
			ctx := context.Background()
			items := []ReservationItem{{ProductID: product.ID, Quantity: quantity}}

			_, err := svc.Reserve(ctx, items)
			if quantity > initialStock {
				// Must fail and leave stock untouched
				return err != nil && repo.stockOf(product.ID) == initialStock
			}
			if err != nil {
				t.Logf("unexpected reserve failure: %v", err)
				return false
			}
			if repo.stockOf(product.ID) != initialStock-quantity {
				t.Logf("stock after reserve: got %d, want %d", repo.stockOf(product.ID), initialStock-quantity)
				return false
			}

			if err := svc.Restore(ctx, items); err != nil {
				t.Logf("restore failed: %v", err)
				return false
			}
			return repo.stockOf(product.ID) == initialStock
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
