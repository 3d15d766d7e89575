package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/catalog"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetItems(ctx context.Context, userID uuid.UUID) ([]*Item, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Item), args.Error(1)
}

func (m *MockRepository) GetItem(ctx context.Context, userID, productID uuid.UUID) (*Item, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockRepository) UpsertItem(ctx context.Context, item *Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockRepository) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	args := m.Called(ctx, userID, productID, quantity)
	return args.Error(0)
}

func (m *MockRepository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	args := m.Called(ctx, userID, productID)
	return args.Error(0)
}

func (m *MockRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockProductSource struct {
	mock.Mock
}

func (m *MockProductSource) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

// --- Tests ---

func TestGetComputesSubtotal(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockProductSource), zap.NewNop())

	userID := uuid.New()
	repo.On("GetItems", mock.Anything, userID).Return([]*Item{
		{ProductID: uuid.New(), Quantity: 2, UnitPrice: 100000},
		{ProductID: uuid.New(), Quantity: 1, UnitPrice: 50000},
	}, nil)

	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), view.Subtotal)
	assert.Len(t, view.Items, 2)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	repo := new(MockRepository)
	products := new(MockProductSource)
	svc := NewService(repo, products, zap.NewNop())

	userID := uuid.New()
	productID := uuid.New()
	products.On("GetProduct", mock.Anything, productID).Return(&catalog.Product{
		ID: productID, Price: 199000, Active: true,
	}, nil)
	repo.On("UpsertItem", mock.Anything, mock.MatchedBy(func(item *Item) bool {
		return item.UnitPrice == 199000 && item.Quantity == 3
	})).Return(nil)

	require.NoError(t, svc.AddItem(context.Background(), userID, productID, 3))
	repo.AssertExpectations(t)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	products := new(MockProductSource)
	svc := NewService(new(MockRepository), products, zap.NewNop())

	productID := uuid.New()
	products.On("GetProduct", mock.Anything, productID).Return(&catalog.Product{
		ID: productID, Active: false,
	}, nil)

	err := svc.AddItem(context.Background(), uuid.New(), productID, 1)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockProductSource), zap.NewNop())

	err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateItemZeroRemoves(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockProductSource), zap.NewNop())

	userID := uuid.New()
	productID := uuid.New()
	repo.On("RemoveItem", mock.Anything, userID, productID).Return(nil)

	require.NoError(t, svc.UpdateItem(context.Background(), userID, productID, 0))
	repo.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestItemsRejectsEmptyCart(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockProductSource), zap.NewNop())

	userID := uuid.New()
	repo.On("GetItems", mock.Anything, userID).Return([]*Item{}, nil)

	_, err := svc.Items(context.Background(), userID)
	assert.ErrorIs(t, err, ErrEmptyCart)
}
