package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"

	"github.com/lapstore/server/internal/utils/random"
)

// AlipayConfig holds Alipay configuration.
type AlipayConfig struct {
	AppID           string
	PrivateKey      string // RSA2 private key, PEM
	AlipayPublicKey string // Alipay public key for notify verification, PEM
	IsProd          bool
}

// Alipay implements Provider for e-wallet payments through Alipay's
// WAP flow. Alipay amounts are decimal strings in the major unit.
type Alipay struct {
	client *alipay.Client
	cfg    AlipayConfig
}

// NewAlipay creates a new Alipay adapter.
func NewAlipay(cfg AlipayConfig) (*Alipay, error) {
	client, err := alipay.NewClient(cfg.AppID, cfg.PrivateKey, cfg.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}
	client.AutoVerifySign([]byte(cfg.AlipayPublicKey))

	return &Alipay{client: client, cfg: cfg}, nil
}

// Name returns the provider name.
func (p *Alipay) Name() string {
	return "alipay"
}

// CreatePayment builds the WAP pay redirect URL. out_trade_no is the
// correlation key echoed back on the notify.
func (p *Alipay) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	outTradeNo := req.OrderNo + "-" + random.UpperAlphaNum(4)

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", outTradeNo)
	bm.Set("total_amount", fmt.Sprintf("%d.00", req.Amount))
	bm.Set("subject", req.OrderInfo)
	bm.Set("product_code", "QUICK_WAP_WAY")
	bm.Set("timeout_express", "15m")
	bm.Set("notify_url", req.NotifyURL)
	bm.Set("return_url", req.ReturnURL)

	payURL, err := p.client.TradeWapPay(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("create wap payment: %w", err)
	}

	return &CreateResult{
		TxnID:       outTradeNo,
		RedirectURL: payURL,
	}, nil
}

// ParseCallback verifies an Alipay async notify. The SDK wants an
// *http.Request, so the raw form body is rewrapped before parsing.
func (p *Alipay) ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("rebuild notify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	notify, err := alipay.ParseNotifyToBodyMap(httpReq)
	if err != nil {
		return nil, fmt.Errorf("parse notify: %w", err)
	}

	ok, err := alipay.VerifySign(p.cfg.AlipayPublicKey, notify)
	if err != nil {
		return nil, fmt.Errorf("verify notify signature: %w", err)
	}
	if !ok {
		return nil, ErrSignatureInvalid
	}

	tradeStatus := notify.Get("trade_status")
	switch tradeStatus {
	case "TRADE_SUCCESS", "TRADE_FINISHED", "TRADE_CLOSED":
	default:
		// WAIT_BUYER_PAY and friends carry no settled outcome.
		return nil, ErrEventIgnored
	}

	amount, _ := strconv.ParseFloat(notify.Get("total_amount"), 64)
	raw, _ := json.Marshal(notify)

	return &Callback{
		EventID: notify.Get("notify_id"),
		TxnID:   notify.Get("out_trade_no"),
		Amount:  int64(amount),
		Success: tradeStatus == "TRADE_SUCCESS" || tradeStatus == "TRADE_FINISHED",
		Message: "trade_status=" + tradeStatus,
		Raw:     string(raw),
	}, nil
}

// QueryPayment queries the trade by out_trade_no.
func (p *Alipay) QueryPayment(ctx context.Context, txnID string) (*QueryResult, error) {
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", txnID)

	resp, err := p.client.TradeQuery(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	if resp.Response.Code != "10000" {
		return nil, fmt.Errorf("alipay query error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	amount, _ := strconv.ParseFloat(resp.Response.TotalAmount, 64)
	result := &QueryResult{TxnID: resp.Response.OutTradeNo, Amount: int64(amount)}
	switch resp.Response.TradeStatus {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		result.Status = StatusSuccess
	case "TRADE_CLOSED":
		result.Status = StatusFailed
	default:
		result.Status = StatusPending
	}
	return result, nil
}
