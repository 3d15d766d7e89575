package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/cart"
	"github.com/lapstore/server/internal/module/catalog"
	"github.com/lapstore/server/internal/module/voucher"
	"github.com/lapstore/server/internal/shared/config"
	"github.com/lapstore/server/internal/utils/metrics"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, order *Order, entry *TimelineEntry) error {
	args := m.Called(ctx, order, entry)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	args := m.Called(ctx, orderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByProviderTxnID(ctx context.Context, txnID string) (*Order, error) {
	args := m.Called(ctx, txnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, userID uuid.UUID, status *Status, page, pageSize int) ([]*Order, int64, error) {
	args := m.Called(ctx, userID, status, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) SetProviderRequest(ctx context.Context, id uuid.UUID, txnID, token string) error {
	args := m.Called(ctx, id, txnID, token)
	return args.Error(0)
}

func (m *MockRepository) SetVoucherReserved(ctx context.Context, id uuid.UUID, reserved bool) error {
	args := m.Called(ctx, id, reserved)
	return args.Error(0)
}

func (m *MockRepository) SetStockCommitted(ctx context.Context, id uuid.UUID, committed bool) error {
	args := m.Called(ctx, id, committed)
	return args.Error(0)
}

func (m *MockRepository) ClaimStockCommit(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) TransitionPaymentStatus(ctx context.Context, id uuid.UUID, from []PaymentStatus, to PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) AppendTimeline(ctx context.Context, entry *TimelineEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) Timeline(ctx context.Context, orderID uuid.UUID) ([]*TimelineEntry, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*TimelineEntry), args.Error(1)
}

func (m *MockRepository) ListExpiredPayable(ctx context.Context, before time.Time) ([]*Order, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

type MockVoucherLedger struct {
	mock.Mock
}

func (m *MockVoucherLedger) Validate(ctx context.Context, code string, octx voucher.OrderContext) (*voucher.Voucher, int64, error) {
	args := m.Called(ctx, code, octx)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*voucher.Voucher), args.Get(1).(int64), args.Error(2)
}

func (m *MockVoucherLedger) Reserve(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockVoucherLedger) Release(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockInventoryLedger struct {
	mock.Mock
}

func (m *MockInventoryLedger) CheckAvailability(ctx context.Context, items []catalog.SaleItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockInventoryLedger) CommitSale(ctx context.Context, orderID uuid.UUID, items []catalog.SaleItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *MockInventoryLedger) ReleaseSale(ctx context.Context, orderID uuid.UUID, items []catalog.SaleItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) Items(ctx context.Context, userID uuid.UUID) ([]*cart.Item, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cart.Item), args.Error(1)
}

func (m *MockCartStore) Clear(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockPaymentRefresher struct {
	mock.Mock
}

func (m *MockPaymentRefresher) RefreshPaymentStatus(ctx context.Context, o *Order) (*Order, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

type MockProductSource struct {
	mock.Mock
}

func (m *MockProductSource) GetProducts(ctx context.Context, ids []uuid.UUID) ([]*catalog.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalog.Product), args.Error(1)
}

// --- Fixtures ---

type fixture struct {
	repo      *MockRepository
	vouchers  *MockVoucherLedger
	inventory *MockInventoryLedger
	carts     *MockCartStore
	products  *MockProductSource
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      new(MockRepository),
		vouchers:  new(MockVoucherLedger),
		inventory: new(MockInventoryLedger),
		carts:     new(MockCartStore),
		products:  new(MockProductSource),
	}
	f.svc = NewService(
		f.repo, f.vouchers, f.inventory, f.carts, f.products,
		nil,
		metrics.New("test", prometheus.NewRegistry()),
		config.CheckoutConfig{
			ShippingFee:   30000,
			PaymentWindow: 15 * time.Minute,
			StaleAfter:    2 * time.Minute,
		},
		zap.NewNop(),
	)
	return f
}

func (f *fixture) stockCart(userID uuid.UUID, price int64, quantity int) uuid.UUID {
	productID := uuid.New()
	f.carts.On("Items", mock.Anything, userID).Return([]*cart.Item{
		{UserID: userID, ProductID: productID, Quantity: quantity, UnitPrice: price},
	}, nil)
	f.products.On("GetProducts", mock.Anything, mock.Anything).Return([]*catalog.Product{
		{ID: productID, Name: "Laptop", Price: price, Stock: 100, Active: true},
	}, nil)
	return productID
}

// --- Checkout ---

func TestCreateCashOrder(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.stockCart(userID, 100000, 3)

	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.carts.On("Clear", mock.Anything, userID).Return(nil)

	o, err := f.svc.CreateCashOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(300000), o.Subtotal)
	assert.Equal(t, int64(30000), o.ShippingFee)
	assert.Equal(t, int64(330000), o.Total)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, MethodCash, o.PaymentMethod)
	assert.False(t, o.StockCommitted, "stock must not be committed at creation")
	assert.NotEmpty(t, o.OrderNo)
	f.carts.AssertCalled(t, "Clear", mock.Anything, userID)
}

func TestCreateCashOrderWithVoucher(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.stockCart(userID, 100000, 3)

	v := &voucher.Voucher{ID: uuid.New(), Code: "SAVE10"}
	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(nil)
	f.vouchers.On("Validate", mock.Anything, "SAVE10", mock.Anything).Return(v, int64(20000), nil)
	f.vouchers.On("Reserve", mock.Anything, v.ID).Return(nil)
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.carts.On("Clear", mock.Anything, userID).Return(nil)

	o, err := f.svc.CreateCashOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "SAVE10")
	require.NoError(t, err)

	assert.Equal(t, int64(20000), o.Discount)
	assert.Equal(t, int64(310000), o.Total) // 300000 + 30000 - 20000
	assert.Equal(t, "SAVE10", o.VoucherCode)
	assert.True(t, o.VoucherReserved)
}

func TestCreateOrderTotalFlooredAtZero(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.stockCart(userID, 10000, 1)

	v := &voucher.Voucher{ID: uuid.New(), Code: "MEGA"}
	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(nil)
	f.vouchers.On("Validate", mock.Anything, "MEGA", mock.Anything).Return(v, int64(500000), nil)
	f.vouchers.On("Reserve", mock.Anything, v.ID).Return(nil)
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.carts.On("Clear", mock.Anything, userID).Return(nil)

	o, err := f.svc.CreateCashOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "MEGA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.Total)
}

func TestCreateCashOrderShortfallRejected(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	productID := f.stockCart(userID, 100000, 5)

	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(
		&catalog.InsufficientStockError{ProductID: productID, Requested: 5, Available: 2},
	)

	_, err := f.svc.CreateCashOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "")
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateCashOrderReleasesVoucherOnPersistFailure(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.stockCart(userID, 100000, 1)

	v := &voucher.Voucher{ID: uuid.New(), Code: "SAVE10"}
	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(nil)
	f.vouchers.On("Validate", mock.Anything, "SAVE10", mock.Anything).Return(v, int64(10000), nil)
	f.vouchers.On("Reserve", mock.Anything, v.ID).Return(nil)
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.vouchers.On("Release", mock.Anything, v.ID).Return(nil)

	_, err := f.svc.CreateCashOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "SAVE10")
	require.Error(t, err)
	f.vouchers.AssertCalled(t, "Release", mock.Anything, v.ID)
}

func TestCreateGatewayOrderKeepsCart(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.stockCart(userID, 200000, 1)

	f.inventory.On("CheckAvailability", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	o, err := f.svc.CreateGatewayOrder(context.Background(), userID, ShippingAddress{City: "Hanoi"}, "", MethodVNPay)
	require.NoError(t, err)
	assert.Equal(t, MethodVNPay, o.PaymentMethod)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestCreateGatewayOrderRejectsCash(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateGatewayOrder(context.Background(), uuid.New(), ShippingAddress{}, "", MethodCash)
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

// --- Payment reconciliation ---

func paidOrder(method PaymentMethod, status PaymentStatus) *Order {
	productID := uuid.New()
	o := &Order{
		ID:            uuid.New(),
		OrderNo:       "ORD-20260901-ABCDE",
		UserID:        uuid.New(),
		PaymentMethod: method,
		PaymentStatus: status,
		Status:        StatusNew,
		Items: []Item{
			{ProductID: productID, Quantity: 2, UnitPrice: 100000, Subtotal: 200000},
		},
		Subtotal: 200000,
		Total:    230000,
	}
	return o
}

func TestApplyPaymentResultSuccess(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentProcessing)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentSuccess).Return(true, nil)
	f.repo.On("ClaimStockCommit", mock.Anything, o.ID).Return(true, nil)
	f.inventory.On("CommitSale", mock.Anything, o.ID, mock.Anything).Return(nil)
	f.carts.On("Clear", mock.Anything, o.UserID).Return(nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.ApplyPaymentResult(context.Background(), o.ID, true, "VNP123", "vnpay")
	require.NoError(t, err)

	f.inventory.AssertCalled(t, "CommitSale", mock.Anything, o.ID, mock.Anything)
	f.carts.AssertCalled(t, "Clear", mock.Anything, o.UserID)
}

func TestApplyPaymentResultIdempotentOnDuplicate(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentSuccess)
	o.StockCommitted = true

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)

	got, err := f.svc.ApplyPaymentResult(context.Background(), o.ID, true, "VNP123", "vnpay")
	require.NoError(t, err)
	assert.Equal(t, PaymentSuccess, got.PaymentStatus)

	// No second stock commit and no state writes.
	f.inventory.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "TransitionPaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyPaymentResultLostRaceDoesNothing(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentProcessing)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	// Another callback transitioned the order between our read and write.
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentSuccess).Return(false, nil)

	_, err := f.svc.ApplyPaymentResult(context.Background(), o.ID, true, "VNP123", "vnpay")
	require.NoError(t, err)
	f.inventory.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyPaymentResultFailureReleasesVoucher(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodMoMo, PaymentProcessing)
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = true

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed).Return(true, nil)
	f.vouchers.On("Release", mock.Anything, voucherID).Return(nil)
	f.repo.On("SetVoucherReserved", mock.Anything, o.ID, false).Return(nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.ApplyPaymentResult(context.Background(), o.ID, false, "", "momo")
	require.NoError(t, err)

	f.vouchers.AssertCalled(t, "Release", mock.Anything, voucherID)
	f.inventory.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
}

// --- Fulfillment transitions ---

func TestTransitionNewToProcessingCommitsStock(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.repo.On("ClaimStockCommit", mock.Anything, o.ID).Return(true, nil)
	f.inventory.On("CommitSale", mock.Anything, o.ID, mock.Anything).Return(nil)
	f.repo.On("TransitionStatus", mock.Anything, o.ID, StatusNew, StatusProcessing).Return(true, nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.TransitionStatus(context.Background(), o.ID, StatusProcessing, "admin", "")
	require.NoError(t, err)
	f.inventory.AssertCalled(t, "CommitSale", mock.Anything, o.ID, mock.Anything)
}

func TestTransitionConcurrentCommitClaimLoses(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	// Another new -> processing attempt already holds the commit.
	f.repo.On("ClaimStockCommit", mock.Anything, o.ID).Return(false, nil)

	_, err := f.svc.TransitionStatus(context.Background(), o.ID, StatusProcessing, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The loser must not decrement stock or move the order.
	f.inventory.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "SetStockCommitted", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransitionFailsOnShortfallLeavesOrderNew(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.repo.On("ClaimStockCommit", mock.Anything, o.ID).Return(true, nil)
	f.inventory.On("CommitSale", mock.Anything, o.ID, mock.Anything).Return(
		&catalog.InsufficientStockError{ProductID: o.Items[0].ProductID, Requested: 2, Available: 0},
	)
	f.repo.On("SetStockCommitted", mock.Anything, o.ID, false).Return(nil)

	_, err := f.svc.TransitionStatus(context.Background(), o.ID, StatusProcessing, "admin", "")
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	// The claim is returned so a later attempt can commit.
	f.repo.AssertCalled(t, "SetStockCommitted", mock.Anything, o.ID, false)
}

func TestTransitionRejectsUnpaidGatewayOrder(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodZaloPay, PaymentProcessing)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)

	_, err := f.svc.TransitionStatus(context.Background(), o.ID, StatusProcessing, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelReleasesCommittedStockAndVoucher(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)
	o.Status = StatusProcessing
	o.StockCommitted = true
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = true

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.repo.On("TransitionStatus", mock.Anything, o.ID, StatusProcessing, StatusCancelled).Return(true, nil)
	f.inventory.On("ReleaseSale", mock.Anything, o.ID, mock.Anything).Return(nil)
	f.repo.On("SetStockCommitted", mock.Anything, o.ID, false).Return(nil)
	f.vouchers.On("Release", mock.Anything, voucherID).Return(nil)
	f.repo.On("SetVoucherReserved", mock.Anything, o.ID, false).Return(nil)
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentCancelled).Return(true, nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Cancel(context.Background(), o.ID, o.UserID, "changed my mind")
	require.NoError(t, err)

	f.inventory.AssertCalled(t, "ReleaseSale", mock.Anything, o.ID, mock.Anything)
	f.vouchers.AssertCalled(t, "Release", mock.Anything, voucherID)
}

func TestCancelRejectsOtherUsersOrder(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)

	_, err := f.svc.Cancel(context.Background(), o.ID, uuid.New(), "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelRejectsShippedOrder(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodCash, PaymentPending)
	o.Status = StatusShipping

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)

	_, err := f.svc.Cancel(context.Background(), o.ID, o.UserID, "")
	assert.ErrorIs(t, err, ErrOrderNotCancelable)
}

// --- Gateway request compensation ---

func TestHandleGatewayRequestFailureReleasesVoucher(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentPending)
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = true

	f.repo.On("GetByID", mock.Anything, o.ID).Return(o, nil)
	f.vouchers.On("Release", mock.Anything, voucherID).Return(nil)
	f.repo.On("SetVoucherReserved", mock.Anything, o.ID, false).Return(nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.svc.HandleGatewayRequestFailure(context.Background(), o.ID))
	f.vouchers.AssertCalled(t, "Release", mock.Anything, voucherID)
}

func TestEnsureVoucherReservedReclaims(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentPending)
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = false

	f.vouchers.On("Reserve", mock.Anything, voucherID).Return(nil)
	f.repo.On("SetVoucherReserved", mock.Anything, o.ID, true).Return(nil)

	require.NoError(t, f.svc.EnsureVoucherReserved(context.Background(), o))
	assert.True(t, o.VoucherReserved)
}

func TestEnsureVoucherReservedNoopWhenHeld(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentPending)
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = true

	require.NoError(t, f.svc.EnsureVoucherReserved(context.Background(), o))
	f.vouchers.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
}

// --- Expiry sweep ---

func TestExpirePendingOrders(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentProcessing)
	voucherID := uuid.New()
	o.VoucherID = &voucherID
	o.VoucherReserved = true

	f.repo.On("ListExpiredPayable", mock.Anything, mock.Anything).Return([]*Order{o}, nil)
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed).Return(true, nil)
	f.vouchers.On("Release", mock.Anything, voucherID).Return(nil)
	f.repo.On("SetVoucherReserved", mock.Anything, o.ID, false).Return(nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.MatchedBy(func(e *TimelineEntry) bool {
		return e.Message == "payment window expired"
	})).Return(nil)

	require.NoError(t, f.svc.ExpirePendingOrders(context.Background()))
	f.vouchers.AssertCalled(t, "Release", mock.Anything, voucherID)
	// One entry only, carrying the expiry message.
	f.repo.AssertNumberOfCalls(t, "AppendTimeline", 1)
}

func TestExpiryChecksProviderBeforeFailing(t *testing.T) {
	f := newFixture(t)
	refresher := new(MockPaymentRefresher)
	f.svc.SetPaymentRefresher(refresher)

	o := paidOrder(MethodVNPay, PaymentProcessing)
	o.ProviderTxnID = "ORD-1-XY12"

	// The payment settled at the provider but the callback was lost.
	settled := *o
	settled.PaymentStatus = PaymentSuccess
	f.repo.On("ListExpiredPayable", mock.Anything, mock.Anything).Return([]*Order{o}, nil)
	refresher.On("RefreshPaymentStatus", mock.Anything, o).Return(&settled, nil)

	require.NoError(t, f.svc.ExpirePendingOrders(context.Background()))

	f.repo.AssertNotCalled(t, "TransitionPaymentStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.vouchers.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestExpiryFailsUnsettledOrderAfterProviderCheck(t *testing.T) {
	f := newFixture(t)
	refresher := new(MockPaymentRefresher)
	f.svc.SetPaymentRefresher(refresher)

	o := paidOrder(MethodVNPay, PaymentProcessing)
	o.ProviderTxnID = "ORD-1-XY12"

	f.repo.On("ListExpiredPayable", mock.Anything, mock.Anything).Return([]*Order{o}, nil)
	refresher.On("RefreshPaymentStatus", mock.Anything, o).Return(o, nil)
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed).Return(true, nil)
	f.repo.On("AppendTimeline", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.svc.ExpirePendingOrders(context.Background()))
	f.repo.AssertCalled(t, "TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed)
}

func TestExpiryDefersWhenProviderUnreachable(t *testing.T) {
	f := newFixture(t)
	refresher := new(MockPaymentRefresher)
	f.svc.SetPaymentRefresher(refresher)

	o := paidOrder(MethodVNPay, PaymentProcessing)
	o.ProviderTxnID = "ORD-1-XY12"

	f.repo.On("ListExpiredPayable", mock.Anything, mock.Anything).Return([]*Order{o}, nil)
	refresher.On("RefreshPaymentStatus", mock.Anything, o).Return(nil, errors.New("gateway timeout"))

	require.NoError(t, f.svc.ExpirePendingOrders(context.Background()))

	// Left for the next sweep rather than failed blind.
	f.repo.AssertNotCalled(t, "TransitionPaymentStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExpirePendingOrdersSkipsSettled(t *testing.T) {
	f := newFixture(t)
	o := paidOrder(MethodVNPay, PaymentProcessing)

	f.repo.On("ListExpiredPayable", mock.Anything, mock.Anything).Return([]*Order{o}, nil)
	// Callback won the race before the sweep.
	f.repo.On("TransitionPaymentStatus", mock.Anything, o.ID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed).Return(false, nil)

	require.NoError(t, f.svc.ExpirePendingOrders(context.Background()))
	f.vouchers.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}
