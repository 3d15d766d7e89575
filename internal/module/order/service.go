package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/cart"
	"github.com/lapstore/server/internal/module/catalog"
	"github.com/lapstore/server/internal/module/voucher"
	"github.com/lapstore/server/internal/shared/config"
	"github.com/lapstore/server/internal/utils/metrics"
	"github.com/lapstore/server/internal/utils/random"
)

// VoucherLedger is the voucher reservation surface the order flow uses.
type VoucherLedger interface {
	Validate(ctx context.Context, code string, order voucher.OrderContext) (*voucher.Voucher, int64, error)
	Reserve(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

// InventoryLedger is the stock surface the order flow uses.
type InventoryLedger interface {
	CheckAvailability(ctx context.Context, items []catalog.SaleItem) error
	CommitSale(ctx context.Context, orderID uuid.UUID, items []catalog.SaleItem) error
	ReleaseSale(ctx context.Context, orderID uuid.UUID, items []catalog.SaleItem) error
}

// CartStore supplies checkout input and is cleared on a confirmed sale.
type CartStore interface {
	Items(ctx context.Context, userID uuid.UUID) ([]*cart.Item, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// ProductSource resolves current product facts at checkout time.
type ProductSource interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) ([]*catalog.Product, error)
}

// PaymentRefresher actively polls a payment provider for an order whose
// local payment state has gone stale.
type PaymentRefresher interface {
	RefreshPaymentStatus(ctx context.Context, o *Order) (*Order, error)
}

// Service owns the order lifecycle: it sequences the voucher and
// inventory ledgers around order persistence and applies reconciled
// payment results.
type Service struct {
	repo      Repository
	sm        *StateMachine
	vouchers  VoucherLedger
	inventory InventoryLedger
	carts     CartStore
	products  ProductSource
	cache     redis.UniversalClient
	metrics   *metrics.Metrics
	cfg       config.CheckoutConfig
	logger    *zap.Logger

	refresher PaymentRefresher
}

// NewService creates a new order service.
func NewService(
	repo Repository,
	vouchers VoucherLedger,
	inventory InventoryLedger,
	carts CartStore,
	products ProductSource,
	cache redis.UniversalClient,
	m *metrics.Metrics,
	cfg config.CheckoutConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		sm:        NewStateMachine(),
		vouchers:  vouchers,
		inventory: inventory,
		carts:     carts,
		products:  products,
		cache:     cache,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetPaymentRefresher wires the provider polling dependency. Set after
// construction because the payment service is built on top of this one.
func (s *Service) SetPaymentRefresher(r PaymentRefresher) {
	s.refresher = r
}

// CreateCashOrder creates a cash-on-delivery order from the user's cart.
// Stock is verified but not decremented; the decrement happens at the
// new -> processing transition when fulfillment starts.
func (s *Service) CreateCashOrder(ctx context.Context, userID uuid.UUID, addr ShippingAddress, voucherCode string) (*Order, error) {
	o, err := s.buildOrder(ctx, userID, addr, voucherCode, MethodCash)
	if err != nil {
		s.countCheckout(MethodCash, err)
		return nil, err
	}

	entry := &TimelineEntry{Status: string(StatusNew), Message: "order created", Actor: "user"}
	if err := s.repo.Create(ctx, o, entry); err != nil {
		s.compensateVoucher(ctx, o)
		s.countCheckout(MethodCash, err)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to clear cart after checkout",
			zap.Error(err), zap.String("order_id", o.ID.String()))
	}

	s.countCheckout(MethodCash, nil)
	s.logger.Info("cash order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_no", o.OrderNo),
		zap.Int64("total", o.Total),
	)
	return o, nil
}

// CreateGatewayOrder creates a gateway-paid order from the user's cart.
// The order is persisted with paymentStatus pending; the payment module
// then creates the provider request against it. The cart is cleared
// only once payment succeeds.
func (s *Service) CreateGatewayOrder(ctx context.Context, userID uuid.UUID, addr ShippingAddress, voucherCode string, method PaymentMethod) (*Order, error) {
	if !ValidMethod(method) || !method.Gateway() {
		return nil, ErrInvalidMethod
	}

	o, err := s.buildOrder(ctx, userID, addr, voucherCode, method)
	if err != nil {
		s.countCheckout(method, err)
		return nil, err
	}

	entry := &TimelineEntry{Status: string(StatusNew), Message: "order created, awaiting payment", Actor: "user"}
	if err := s.repo.Create(ctx, o, entry); err != nil {
		s.compensateVoucher(ctx, o)
		s.countCheckout(method, err)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.countCheckout(method, nil)
	s.logger.Info("gateway order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_no", o.OrderNo),
		zap.String("method", string(method)),
		zap.Int64("total", o.Total),
	)
	return o, nil
}

// buildOrder snapshots the cart into order lines at current prices,
// verifies availability, and reserves the voucher if a code is given.
func (s *Service) buildOrder(ctx context.Context, userID uuid.UUID, addr ShippingAddress, voucherCode string, method PaymentMethod) (*Order, error) {
	cartItems, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(cartItems))
	for i, ci := range cartItems {
		ids[i] = ci.ProductID
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		items    []Item
		sale     []catalog.SaleItem
		scope    []voucher.OrderItemRef
		subtotal int64
	)
	for _, ci := range cartItems {
		p, ok := byID[ci.ProductID]
		if !ok || !p.Active {
			return nil, catalog.ErrProductNotFound
		}
		lineSubtotal := p.Price * int64(ci.Quantity)
		items = append(items, Item{
			ProductID:   p.ID,
			CategoryID:  p.CategoryID,
			ProductName: p.Name,
			Quantity:    ci.Quantity,
			UnitPrice:   p.Price,
			Subtotal:    lineSubtotal,
		})
		sale = append(sale, catalog.SaleItem{ProductID: p.ID, Quantity: ci.Quantity})
		scope = append(scope, voucher.OrderItemRef{ProductID: p.ID, CategoryID: p.CategoryID})
		subtotal += lineSubtotal
	}

	if err := s.inventory.CheckAvailability(ctx, sale); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			s.metrics.StockConflictsTotal.Inc()
		}
		return nil, err
	}

	o := &Order{
		OrderNo:         generateOrderNo(),
		UserID:          userID,
		ShippingAddress: addr,
		Items:           items,
		Subtotal:        subtotal,
		ShippingFee:     s.cfg.ShippingFee,
		PaymentMethod:   method,
		PaymentStatus:   PaymentPending,
		Status:          StatusNew,
	}

	if voucherCode != "" {
		v, discount, err := s.vouchers.Validate(ctx, voucherCode, voucher.OrderContext{
			UserID:   userID,
			Subtotal: subtotal,
			Items:    scope,
		})
		if err != nil {
			return nil, err
		}
		if err := s.vouchers.Reserve(ctx, v.ID); err != nil {
			return nil, err
		}
		o.VoucherID = &v.ID
		o.VoucherCode = v.Code
		o.Discount = discount
		o.VoucherReserved = true
	}

	total := o.Subtotal + o.ShippingFee - o.Discount
	if total < 0 {
		total = 0
	}
	o.Total = total
	return o, nil
}

// EnsureVoucherReserved re-claims the voucher unit before a payment
// retry; a failed gateway request releases the reservation, so a retry
// must take it again.
func (s *Service) EnsureVoucherReserved(ctx context.Context, o *Order) error {
	if o.VoucherID == nil || o.VoucherReserved {
		return nil
	}
	if err := s.vouchers.Reserve(ctx, *o.VoucherID); err != nil {
		return err
	}
	o.VoucherReserved = true
	return s.repo.SetVoucherReserved(ctx, o.ID, true)
}

// AttachPaymentRequest stores the provider correlation fields and moves
// the order's payment into processing.
func (s *Service) AttachPaymentRequest(ctx context.Context, orderID uuid.UUID, txnID, token string) error {
	if err := s.repo.SetProviderRequest(ctx, orderID, txnID, token); err != nil {
		return err
	}
	ok, err := s.repo.TransitionPaymentStatus(ctx, orderID,
		[]PaymentStatus{PaymentPending, PaymentFailed}, PaymentProcessing)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOrderNotPayable
	}
	s.bustStatusCache(ctx, orderID)
	return s.repo.AppendTimeline(ctx, &TimelineEntry{
		OrderID: orderID,
		Status:  string(PaymentProcessing),
		Message: "payment request created",
		Actor:   "system",
	})
}

// HandleGatewayRequestFailure compensates a failed payment request
// creation: the voucher reservation is returned but the order stays in
// a retryable pending state.
func (s *Service) HandleGatewayRequestFailure(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if o.VoucherReserved && o.VoucherID != nil {
		if err := s.vouchers.Release(ctx, *o.VoucherID); err != nil {
			s.logger.Error("failed to release voucher after gateway failure",
				zap.Error(err), zap.String("order_id", orderID.String()))
		} else if err := s.repo.SetVoucherReserved(ctx, orderID, false); err != nil {
			return err
		}
	}

	return s.repo.AppendTimeline(ctx, &TimelineEntry{
		OrderID: orderID,
		Status:  string(o.PaymentStatus),
		Message: "payment request failed, order can be retried",
		Actor:   "system",
	})
}

// ApplyPaymentResult reconciles a verified gateway outcome into order,
// stock, voucher, and cart state. It is idempotent: duplicate callbacks
// serialize through the conditional payment status update, and only the
// first success performs the stock commit.
func (s *Service) ApplyPaymentResult(ctx context.Context, orderID uuid.UUID, success bool, providerTxnID, actor string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	target := PaymentFailed
	if success {
		target = PaymentSuccess
	}
	if o.PaymentStatus == target {
		// Duplicate delivery of an already-applied result.
		return o, nil
	}

	ok, err := s.repo.TransitionPaymentStatus(ctx, orderID,
		[]PaymentStatus{PaymentPending, PaymentProcessing}, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race or the order is already terminal; the winner's
		// side effects stand.
		s.logger.Warn("payment result not applied",
			zap.String("order_id", orderID.String()),
			zap.String("current", string(o.PaymentStatus)),
			zap.String("incoming", string(target)),
		)
		return s.repo.GetByID(ctx, orderID)
	}

	if success {
		s.applyPaymentSuccess(ctx, o, providerTxnID, actor)
	} else {
		s.applyPaymentFailure(ctx, o, actor, "payment failed")
	}

	s.bustStatusCache(ctx, orderID)
	return s.repo.GetByID(ctx, orderID)
}

func (s *Service) applyPaymentSuccess(ctx context.Context, o *Order, providerTxnID, actor string) {
	if !o.StockCommitted {
		if _, err := s.commitStock(ctx, o); err != nil {
			// Payment already settled; this is an operational incident,
			// not a reason to reject the callback.
			if errors.Is(err, catalog.ErrInsufficientStock) {
				s.metrics.StockConflictsTotal.Inc()
			}
			s.logger.Error("stock commit failed after successful payment",
				zap.Error(err), zap.String("order_id", o.ID.String()))
			_ = s.repo.AppendTimeline(ctx, &TimelineEntry{
				OrderID: o.ID,
				Status:  string(PaymentSuccess),
				Message: "payment received but stock commit failed",
				Actor:   "system",
			})
		}
	}

	if err := s.carts.Clear(ctx, o.UserID); err != nil {
		s.logger.Error("failed to clear cart after payment",
			zap.Error(err), zap.String("order_id", o.ID.String()))
	}

	msg := "payment succeeded"
	if providerTxnID != "" {
		msg = fmt.Sprintf("payment succeeded (txn %s)", providerTxnID)
	}
	_ = s.repo.AppendTimeline(ctx, &TimelineEntry{
		OrderID: o.ID,
		Status:  string(PaymentSuccess),
		Message: msg,
		Actor:   actor,
	})

	s.logger.Info("payment applied",
		zap.String("order_id", o.ID.String()),
		zap.String("provider_txn_id", providerTxnID),
	)
}

func (s *Service) applyPaymentFailure(ctx context.Context, o *Order, actor, message string) {
	if o.VoucherReserved && o.VoucherID != nil {
		if err := s.vouchers.Release(ctx, *o.VoucherID); err != nil {
			s.logger.Error("failed to release voucher after payment failure",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		} else if err := s.repo.SetVoucherReserved(ctx, o.ID, false); err != nil {
			s.logger.Error("failed to record voucher release",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		}
	}

	_ = s.repo.AppendTimeline(ctx, &TimelineEntry{
		OrderID: o.ID,
		Status:  string(PaymentFailed),
		Message: message,
		Actor:   actor,
	})

	s.logger.Info("payment failure applied", zap.String("order_id", o.ID.String()))
}

// commitStock decrements inventory exactly once per order. The claim on
// the stock_committed flag serializes concurrent writers; a caller that
// fails to claim must not touch stock.
func (s *Service) commitStock(ctx context.Context, o *Order) (bool, error) {
	claimed, err := s.repo.ClaimStockCommit(ctx, o.ID)
	if err != nil || !claimed {
		return false, err
	}
	sale := make([]catalog.SaleItem, len(o.Items))
	for i, item := range o.Items {
		sale[i] = catalog.SaleItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.inventory.CommitSale(ctx, o.ID, sale); err != nil {
		if rerr := s.repo.SetStockCommitted(ctx, o.ID, false); rerr != nil {
			s.logger.Error("failed to return stock commit claim",
				zap.Error(rerr), zap.String("order_id", o.ID.String()))
		}
		return false, err
	}
	o.StockCommitted = true
	return true, nil
}

func (s *Service) releaseStock(ctx context.Context, o *Order) error {
	sale := make([]catalog.SaleItem, len(o.Items))
	for i, item := range o.Items {
		sale[i] = catalog.SaleItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := s.inventory.ReleaseSale(ctx, o.ID, sale); err != nil {
		return err
	}
	o.StockCommitted = false
	return s.repo.SetStockCommitted(ctx, o.ID, false)
}

// TransitionStatus moves an order through its fulfillment lifecycle.
// Entering processing commits stock for orders that have not yet been
// decremented (cash on delivery); cancellation compensates whatever the
// order currently holds.
func (s *Service) TransitionStatus(ctx context.Context, orderID uuid.UUID, to Status, actor, message string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !s.sm.CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, to)
	}

	committedNow := false
	switch to {
	case StatusProcessing:
		if o.PaymentMethod.Gateway() && o.PaymentStatus != PaymentSuccess {
			return nil, fmt.Errorf("%w: gateway order is unpaid", ErrInvalidTransition)
		}
		if !o.StockCommitted {
			// Availability may have changed since checkout; the commit
			// is conditional, so a shortfall fails this transition and
			// leaves the order in `new`.
			claimed, err := s.commitStock(ctx, o)
			if err != nil {
				if errors.Is(err, catalog.ErrInsufficientStock) {
					s.metrics.StockConflictsTotal.Inc()
				}
				return nil, err
			}
			if !claimed {
				// Another transition holds the commit; let it finish.
				return nil, fmt.Errorf("%w: concurrent transition in progress", ErrInvalidTransition)
			}
			committedNow = true
		}
	case StatusCancelled:
		if o.PaymentMethod.Gateway() && o.PaymentStatus == PaymentSuccess {
			return nil, ErrOrderNotCancelable
		}
	}

	from := o.Status
	ok, err := s.repo.TransitionStatus(ctx, orderID, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else moved the order first. Undo a stock commit made
		// for this attempt.
		if committedNow {
			if rerr := s.releaseStock(ctx, o); rerr != nil {
				s.logger.Error("failed to release stock after lost transition race",
					zap.Error(rerr), zap.String("order_id", orderID.String()))
			}
		}
		return nil, ErrInvalidTransition
	}

	if to == StatusCancelled {
		s.compensateCancellation(ctx, o)
	}

	if message == "" {
		message = fmt.Sprintf("order %s", to)
	}
	_ = s.repo.AppendTimeline(ctx, &TimelineEntry{
		OrderID: orderID,
		Status:  string(to),
		Message: message,
		Actor:   actor,
	})
	s.bustStatusCache(ctx, orderID)

	s.logger.Info("order transitioned",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	return s.repo.GetByID(ctx, orderID)
}

// Cancel cancels an order on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, orderID, userID uuid.UUID, reason string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	if !s.sm.CanTransition(o.Status, StatusCancelled) {
		return nil, ErrOrderNotCancelable
	}
	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.TransitionStatus(ctx, orderID, StatusCancelled, "user", reason)
}

func (s *Service) compensateCancellation(ctx context.Context, o *Order) {
	if o.StockCommitted {
		if err := s.releaseStock(ctx, o); err != nil {
			s.logger.Error("failed to release stock on cancellation",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		}
	}
	if o.VoucherReserved && o.VoucherID != nil && o.PaymentStatus != PaymentSuccess {
		if err := s.vouchers.Release(ctx, *o.VoucherID); err != nil {
			s.logger.Error("failed to release voucher on cancellation",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		} else if err := s.repo.SetVoucherReserved(ctx, o.ID, false); err != nil {
			s.logger.Error("failed to record voucher release",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		}
	}
	if o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentProcessing {
		if _, err := s.repo.TransitionPaymentStatus(ctx, o.ID,
			[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentCancelled); err != nil {
			s.logger.Error("failed to cancel payment status",
				zap.Error(err), zap.String("order_id", o.ID.String()))
		}
	}
}

// GetOrder returns an order by ID.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// GetOrderByNo returns an order by its human-readable number.
func (s *Service) GetOrderByNo(ctx context.Context, orderNo string) (*Order, error) {
	return s.repo.GetByOrderNo(ctx, orderNo)
}

// GetOrderByProviderTxnID resolves the order a gateway callback refers to.
func (s *Service) GetOrderByProviderTxnID(ctx context.Context, txnID string) (*Order, error) {
	return s.repo.GetByProviderTxnID(ctx, txnID)
}

// ListOrders returns a page of the user's orders.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, status *Status, page, pageSize int) ([]*Order, int64, error) {
	return s.repo.List(ctx, userID, status, page, pageSize)
}

// Timeline returns the order's append-only history.
func (s *Service) Timeline(ctx context.Context, orderID uuid.UUID) ([]*TimelineEntry, error) {
	return s.repo.Timeline(ctx, orderID)
}

// StatusView is the lightweight order state returned by status polls.
type StatusView struct {
	OrderID       uuid.UUID     `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

// GetStatus returns the order's current state. When a gateway payment
// has sat in processing longer than the configured staleness bound, the
// provider is polled for a definitive answer before responding.
func (s *Service) GetStatus(ctx context.Context, orderID uuid.UUID) (*StatusView, error) {
	if view := s.statusCacheGet(ctx, orderID); view != nil {
		return view, nil
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.refresher != nil &&
		o.PaymentMethod.Gateway() &&
		o.PaymentStatus == PaymentProcessing &&
		time.Since(o.UpdatedAt) > s.cfg.StaleAfter {
		refreshed, err := s.refresher.RefreshPaymentStatus(ctx, o)
		if err != nil {
			s.logger.Warn("stale payment refresh failed",
				zap.Error(err), zap.String("order_id", orderID.String()))
		} else {
			o = refreshed
		}
	}

	view := &StatusView{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus}
	s.statusCacheSet(ctx, view)
	return view, nil
}

// ExpirePendingOrders fails gateway orders whose payment window lapsed,
// returning their voucher reservations. Orders with a provider request
// are checked against the provider first so a settled payment whose
// callback was lost is applied rather than expired.
func (s *Service) ExpirePendingOrders(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.PaymentWindow)
	orders, err := s.repo.ListExpiredPayable(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, o := range orders {
		// A lost callback can hide a payment that settled at the
		// provider; ask before failing the order.
		if s.refresher != nil && o.ProviderTxnID != "" {
			refreshed, err := s.refresher.RefreshPaymentStatus(ctx, o)
			if err != nil {
				s.logger.Warn("expiry provider check failed, deferring order",
					zap.Error(err), zap.String("order_id", o.ID.String()))
				continue
			}
			o = refreshed
			if o.PaymentStatus != PaymentPending && o.PaymentStatus != PaymentProcessing {
				s.bustStatusCache(ctx, o.ID)
				continue
			}
		}

		ok, err := s.repo.TransitionPaymentStatus(ctx, o.ID,
			[]PaymentStatus{PaymentPending, PaymentProcessing}, PaymentFailed)
		if err != nil {
			s.logger.Error("failed to expire order",
				zap.Error(err), zap.String("order_id", o.ID.String()))
			continue
		}
		if !ok {
			// A callback beat the sweep; nothing to do.
			continue
		}

		s.applyPaymentFailure(ctx, o, "system", "payment window expired")
		s.bustStatusCache(ctx, o.ID)
		s.logger.Info("order payment expired", zap.String("order_id", o.ID.String()))
	}
	return nil
}

// RunExpirySweep runs the pending-order expiry loop until ctx is done.
func (s *Service) RunExpirySweep(ctx context.Context) {
	period := s.cfg.ExpirySweepPeriod
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpirePendingOrders(ctx); err != nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// --- Helpers ---

func (s *Service) compensateVoucher(ctx context.Context, o *Order) {
	if !o.VoucherReserved || o.VoucherID == nil {
		return
	}
	if err := s.vouchers.Release(ctx, *o.VoucherID); err != nil {
		s.logger.Error("failed to release voucher after persist failure",
			zap.Error(err), zap.String("voucher_id", o.VoucherID.String()))
	}
}

func (s *Service) countCheckout(method PaymentMethod, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(err, voucher.ErrVoucherNotFound),
		errors.Is(err, voucher.ErrVoucherInactive),
		errors.Is(err, voucher.ErrVoucherNotStarted),
		errors.Is(err, voucher.ErrVoucherExpired),
		errors.Is(err, voucher.ErrVoucherExhausted),
		errors.Is(err, voucher.ErrMinOrderNotMet),
		errors.Is(err, voucher.ErrVoucherNotApplicable):
		outcome = "voucher_rejected"
	case errors.Is(err, cart.ErrEmptyCart):
		outcome = "empty_cart"
	default:
		outcome = "error"
	}
	s.metrics.CheckoutsTotal.WithLabelValues(string(method), outcome).Inc()
}

const statusCacheTTL = 15 * time.Second

func statusCacheKey(orderID uuid.UUID) string {
	return "order:status:" + orderID.String()
}

func (s *Service) statusCacheGet(ctx context.Context, orderID uuid.UUID) *StatusView {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, statusCacheKey(orderID)).Bytes()
	if err != nil {
		return nil
	}
	var view StatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil
	}
	return &view
}

func (s *Service) statusCacheSet(ctx context.Context, view *StatusView) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCacheKey(view.OrderID), raw, statusCacheTTL).Err(); err != nil {
		s.logger.Debug("status cache set failed", zap.Error(err))
	}
}

func (s *Service) bustStatusCache(ctx context.Context, orderID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(orderID)).Err(); err != nil {
		s.logger.Debug("status cache bust failed", zap.Error(err))
	}
}

func generateOrderNo() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), random.UpperAlphaNum(5))
}
