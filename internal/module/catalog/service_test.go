package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock repository ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateProduct(ctx context.Context, product *Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockRepository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockRepository) GetProducts(ctx context.Context, ids []uuid.UUID) ([]*Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Product), args.Error(1)
}

func (m *MockRepository) UpdateProduct(ctx context.Context, product *Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockRepository) CommitSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockRepository) ReleaseSale(ctx context.Context, orderID uuid.UUID, items []SaleItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockRepository) AdjustStock(ctx context.Context, productID uuid.UUID, movement *StockMovement, newStock int) error {
	args := m.Called(ctx, productID, movement, newStock)
	return args.Error(0)
}

func (m *MockRepository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]*StockMovement, error) {
	args := m.Called(ctx, productID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*StockMovement), args.Error(1)
}

func newTestService(repo Repository) *Service {
	return NewService(repo, zap.NewNop())
}

// --- Tests ---

func TestCheckAvailabilityOK(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	productID := uuid.New()
	repo.On("GetProducts", mock.Anything, mock.Anything).Return([]*Product{
		{ID: productID, Stock: 5},
	}, nil)

	err := svc.CheckAvailability(context.Background(), []SaleItem{
		{ProductID: productID, Quantity: 3},
	})
	require.NoError(t, err)
}

func TestCheckAvailabilityShortfall(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	productID := uuid.New()
	repo.On("GetProducts", mock.Anything, mock.Anything).Return([]*Product{
		{ID: productID, Stock: 3},
	}, nil)

	err := svc.CheckAvailability(context.Background(), []SaleItem{
		{ProductID: productID, Quantity: 5},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)
}

func TestCheckAvailabilityUnknownProduct(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	repo.On("GetProducts", mock.Anything, mock.Anything).Return([]*Product{}, nil)

	err := svc.CheckAvailability(context.Background(), []SaleItem{
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCheckAvailabilityRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(new(MockRepository))

	err := svc.CheckAvailability(context.Background(), []SaleItem{
		{ProductID: uuid.New(), Quantity: 0},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCommitSalePropagatesShortfall(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	productID := uuid.New()
	orderID := uuid.New()
	repo.On("CommitSale", mock.Anything, orderID, mock.Anything).Return(
		&InsufficientStockError{ProductID: productID, Requested: 2, Available: 1},
	)

	err := svc.CommitSale(context.Background(), orderID, []SaleItem{
		{ProductID: productID, Quantity: 2},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReleaseSale(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	orderID := uuid.New()
	items := []SaleItem{{ProductID: uuid.New(), Quantity: 2}}
	repo.On("ReleaseSale", mock.Anything, orderID, items).Return(nil)

	require.NoError(t, svc.ReleaseSale(context.Background(), orderID, items))
	repo.AssertExpectations(t)
}

func TestRestock(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	productID := uuid.New()
	actorID := uuid.New()
	repo.On("GetProduct", mock.Anything, productID).Return(&Product{
		ID: productID, Stock: 2, MinStock: 5,
	}, nil)
	repo.On("AdjustStock", mock.Anything, productID, mock.MatchedBy(func(mv *StockMovement) bool {
		return mv.Type == MovementRestock && mv.Quantity == 10
	}), 12).Return(nil)

	product, err := svc.Restock(context.Background(), productID, 10, "weekly intake", actorID)
	require.NoError(t, err)
	assert.Equal(t, 12, product.Stock)
}

func TestRestockRejectsNonPositive(t *testing.T) {
	svc := newTestService(new(MockRepository))

	_, err := svc.Restock(context.Background(), uuid.New(), 0, "", uuid.New())
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAdjustStockRecordsSignedDelta(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	productID := uuid.New()
	repo.On("GetProduct", mock.Anything, productID).Return(&Product{
		ID: productID, Stock: 10,
	}, nil)
	repo.On("AdjustStock", mock.Anything, productID, mock.MatchedBy(func(mv *StockMovement) bool {
		return mv.Type == MovementAdjustment && mv.Quantity == -4
	}), 6).Return(nil)

	product, err := svc.AdjustStock(context.Background(), productID, 6, "damaged units", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 6, product.Stock)
}

func TestCommitSaleOtherErrorsPassThrough(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	dbErr := errors.New("connection reset")
	repo.On("CommitSale", mock.Anything, mock.Anything, mock.Anything).Return(dbErr)

	err := svc.CommitSale(context.Background(), uuid.New(), []SaleItem{
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, dbErr)
}
