package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/order"
	"github.com/lapstore/server/internal/module/payment/provider"
	"github.com/lapstore/server/internal/shared/config"
	"github.com/lapstore/server/internal/utils/metrics"
)

// OrderService is the slice of order reconciliation the payment flow
// drives.
type OrderService interface {
	EnsureVoucherReserved(ctx context.Context, o *order.Order) error
	AttachPaymentRequest(ctx context.Context, orderID uuid.UUID, txnID, token string) error
	HandleGatewayRequestFailure(ctx context.Context, orderID uuid.UUID) error
	GetOrderByProviderTxnID(ctx context.Context, txnID string) (*order.Order, error)
	ApplyPaymentResult(ctx context.Context, orderID uuid.UUID, success bool, providerTxnID, actor string) (*order.Order, error)
}

// Service coordinates gateway payment requests and callback
// reconciliation. Outbound calls go through a per-provider circuit
// breaker so a dead gateway fails fast instead of tying up checkouts.
type Service struct {
	registry *Registry
	repo     Repository
	orders   OrderService
	metrics  *metrics.Metrics
	cfg      config.PaymentConfig
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewService creates a new payment service.
func NewService(
	registry *Registry,
	repo Repository,
	orders OrderService,
	m *metrics.Metrics,
	cfg config.PaymentConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		orders:   orders,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// InitiatePayment creates a gateway payment request for a payable
// order. On gateway failure the order is left retryable and the caller
// gets ErrGatewayUnavailable.
func (s *Service) InitiatePayment(ctx context.Context, o *order.Order, clientIP string) (*order.PaymentInstruction, error) {
	p, err := s.registry.GetByMethod(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	// A retry after a failed attempt may need to re-claim the voucher
	// released by the earlier failure.
	if err := s.orders.EnsureVoucherReserved(ctx, o); err != nil {
		return nil, err
	}

	attempt := &Payment{
		OrderID:  o.ID,
		Provider: p.Name(),
		Amount:   o.Total,
		Status:   AttemptPending,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	result, err := s.callCreate(ctx, p, &provider.CreateRequest{
		OrderID:   o.ID.String(),
		OrderNo:   o.OrderNo,
		Amount:    o.Total,
		OrderInfo: "Thanh toan don hang " + o.OrderNo,
		ClientIP:  clientIP,
		NotifyURL: s.cfg.NotifyBaseURL + "/webhooks/" + p.Name(),
		ReturnURL: s.cfg.ReturnURL,
	})
	if err != nil {
		s.logger.Error("gateway payment request failed",
			zap.String("order_no", o.OrderNo),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		if uerr := s.repo.UpdateAttempt(ctx, attempt.ID, "", AttemptFailed, err.Error()); uerr != nil {
			s.logger.Error("failed to mark attempt failed", zap.Error(uerr))
		}
		if herr := s.orders.HandleGatewayRequestFailure(ctx, o.ID); herr != nil {
			s.logger.Error("failed to compensate gateway request failure", zap.Error(herr))
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := s.repo.UpdateAttempt(ctx, attempt.ID, result.TxnID, AttemptPending, ""); err != nil {
		s.logger.Error("failed to record attempt txn id", zap.Error(err))
	}
	if err := s.orders.AttachPaymentRequest(ctx, o.ID, result.TxnID, result.Token); err != nil {
		return nil, err
	}

	return &order.PaymentInstruction{
		Provider:    p.Name(),
		RedirectURL: result.RedirectURL,
		Token:       result.Token,
		QRContent:   result.QRContent,
	}, nil
}

// CallbackOutcome tells the webhook handler how to acknowledge a
// delivery to the provider.
type CallbackOutcome struct {
	Duplicate    bool // Event seen before; ack without reprocessing
	OrderMissing bool // TxnID matched no order
	Success      bool // Payment outcome carried by the callback
}

// HandleCallback verifies, deduplicates and applies one provider
// notification. Signature failures and ignored events surface as
// errors. An event id is applied at most once: redeliveries of an
// already-applied event ack as duplicates, while a redelivery of an
// event whose first processing failed carries the retry.
func (s *Service) HandleCallback(ctx context.Context, providerName string, req *provider.CallbackRequest) (*CallbackOutcome, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	cb, err := p.ParseCallback(ctx, req)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, provider.ErrEventIgnored) {
			outcome = "ignored"
		}
		s.metrics.GatewayCallbacksTotal.WithLabelValues(providerName, outcome).Inc()
		return nil, err
	}

	event := &WebhookEvent{
		Provider: providerName,
		EventID:  cb.EventID,
		Payload:  cb.Raw,
	}
	if err := s.repo.CreateWebhookEvent(ctx, event); err != nil {
		if !errors.Is(err, ErrDuplicateEvent) {
			return nil, err
		}
		stored, gerr := s.repo.GetWebhookEvent(ctx, providerName, cb.EventID)
		if gerr != nil {
			return nil, gerr
		}
		if stored.ProcessedAt != nil && stored.ProcessError == "" {
			s.metrics.GatewayCallbacksTotal.WithLabelValues(providerName, "duplicate").Inc()
			s.logger.Info("duplicate webhook delivery",
				zap.String("provider", providerName),
				zap.String("event_id", cb.EventID),
			)
			return &CallbackOutcome{Duplicate: true, Success: cb.Success}, nil
		}
		// First delivery never finished applying; this redelivery is the
		// gateway's retry of it.
		event = stored
		s.logger.Info("reprocessing webhook delivery that failed to apply",
			zap.String("provider", providerName),
			zap.String("event_id", cb.EventID),
		)
	}

	processErr := s.applyCallback(ctx, providerName, cb)
	if err := s.repo.MarkWebhookEventProcessed(ctx, event.ID, processErr); err != nil {
		s.logger.Error("failed to mark webhook event processed", zap.Error(err))
	}
	if processErr != nil {
		if errors.Is(processErr, order.ErrOrderNotFound) {
			s.metrics.GatewayCallbacksTotal.WithLabelValues(providerName, "order_not_found").Inc()
			return &CallbackOutcome{OrderMissing: true}, nil
		}
		s.metrics.GatewayCallbacksTotal.WithLabelValues(providerName, "error").Inc()
		return nil, processErr
	}

	s.metrics.GatewayCallbacksTotal.WithLabelValues(providerName, "processed").Inc()
	return &CallbackOutcome{Success: cb.Success}, nil
}

func (s *Service) applyCallback(ctx context.Context, providerName string, cb *provider.Callback) error {
	o, err := s.orders.GetOrderByProviderTxnID(ctx, cb.TxnID)
	if err != nil {
		return err
	}

	// An amount mismatch on an authentic callback is an upstream
	// incident, not a verification failure. Record it and stop before
	// any state change.
	if cb.Success && cb.Amount > 0 && cb.Amount != o.Total {
		s.logger.Error("callback amount mismatch",
			zap.String("provider", providerName),
			zap.String("order_no", o.OrderNo),
			zap.Int64("order_total", o.Total),
			zap.Int64("callback_amount", cb.Amount),
		)
		return fmt.Errorf("%w: order %s total %d, callback %d", ErrAmountMismatch, o.OrderNo, o.Total, cb.Amount)
	}

	if _, err := s.orders.ApplyPaymentResult(ctx, o.ID, cb.Success, cb.TxnID, providerName); err != nil {
		return err
	}

	attempt, err := s.repo.GetAttemptByTxnID(ctx, cb.TxnID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil
		}
		return err
	}
	status := AttemptFailed
	reason := cb.Message
	if cb.Success {
		status = AttemptSuccess
		reason = ""
	}
	return s.repo.UpdateAttempt(ctx, attempt.ID, "", status, reason)
}

// RefreshPaymentStatus actively queries the provider for an order whose
// callback has not arrived, and applies the outcome if it is settled.
func (s *Service) RefreshPaymentStatus(ctx context.Context, o *order.Order) (*order.Order, error) {
	if o.ProviderTxnID == "" {
		return o, nil
	}
	p, err := s.registry.GetByMethod(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	result, err := s.callQuery(ctx, p, o.ProviderTxnID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case provider.StatusSuccess:
		return s.orders.ApplyPaymentResult(ctx, o.ID, true, o.ProviderTxnID, p.Name())
	case provider.StatusFailed:
		return s.orders.ApplyPaymentResult(ctx, o.ID, false, o.ProviderTxnID, p.Name())
	default:
		return o, nil
	}
}

// ListAttempts returns the payment attempts recorded for an order.
func (s *Service) ListAttempts(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	return s.repo.ListAttemptsByOrder(ctx, orderID)
}

func (s *Service) callCreate(ctx context.Context, p provider.Provider, req *provider.CreateRequest) (*provider.CreateResult, error) {
	var result *provider.CreateResult
	err := s.execute(ctx, p.Name(), "create", func(ctx context.Context) error {
		var err error
		result, err = p.CreatePayment(ctx, req)
		return err
	})
	return result, err
}

func (s *Service) callQuery(ctx context.Context, p provider.Provider, txnID string) (*provider.QueryResult, error) {
	var result *provider.QueryResult
	err := s.execute(ctx, p.Name(), "query", func(ctx context.Context) error {
		var err error
		result, err = p.QueryPayment(ctx, txnID)
		return err
	})
	return result, err
}

func (s *Service) execute(ctx context.Context, providerName, operation string, fn func(ctx context.Context) error) error {
	breaker := s.getOrCreateBreaker(providerName)

	start := time.Now()
	_, err := breaker.Execute(func() (any, error) {
		callCtx := ctx
		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
		}
		return nil, fn(callCtx)
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveGatewayCall(providerName, operation, outcome, time.Since(start))
	return err
}

func (s *Service) getOrCreateBreaker(providerName string) *gobreaker.CircuitBreaker[any] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if breaker, ok := s.breakers[providerName]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	s.breakers[providerName] = breaker
	return breaker
}
