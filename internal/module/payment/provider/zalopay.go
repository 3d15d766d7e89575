package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lapstore/server/internal/module/payment/signer"
	"github.com/lapstore/server/internal/utils/random"
)

// ZaloPayConfig holds ZaloPay merchant configuration.
type ZaloPayConfig struct {
	AppID    string
	Key1     string // Signs merchant-originated requests
	Key2     string // Verifies provider callbacks
	Endpoint string // create endpoint
	QueryURL string // query endpoint
}

// ZaloPay implements Provider for the ZaloPay gateway. Requests are
// form-encoded with a pipe-joined HMAC-SHA256 mac; two separate keys
// cover the two message directions.
type ZaloPay struct {
	cfg    ZaloPayConfig
	client *http.Client
	now    func() time.Time
}

// NewZaloPay creates a new ZaloPay adapter.
func NewZaloPay(cfg ZaloPayConfig, client *http.Client) *ZaloPay {
	if client == nil {
		client = http.DefaultClient
	}
	return &ZaloPay{cfg: cfg, client: client, now: time.Now}
}

// Name returns the provider name.
func (p *ZaloPay) Name() string {
	return "zalopay"
}

type zalopayCreateResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	OrderURL      string `json:"order_url"`
	ZPTransToken  string `json:"zp_trans_token"`
	QRCode        string `json:"qr_code"`
}

// CreatePayment creates an order with ZaloPay. app_trans_id must be
// prefixed with the current date as yymmdd or the gateway rejects it.
func (p *ZaloPay) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	now := p.now()
	appTransID := fmt.Sprintf("%s_%s-%s", now.Format("060102"), req.OrderNo, random.UpperAlphaNum(4))
	appTime := strconv.FormatInt(now.UnixMilli(), 10)
	amount := strconv.FormatInt(req.Amount, 10)
	appUser := "lapstore"
	item := "[]"

	embed, _ := json.Marshal(map[string]string{"redirecturl": req.ReturnURL})
	embedData := string(embed)

	mac := signer.HMACSHA256(p.cfg.Key1,
		signer.JoinPipe(p.cfg.AppID, appTransID, appUser, amount, appTime, embedData, item))

	form := url.Values{
		"app_id":       {p.cfg.AppID},
		"app_trans_id": {appTransID},
		"app_user":     {appUser},
		"app_time":     {appTime},
		"amount":       {amount},
		"item":         {item},
		"embed_data":   {embedData},
		"description":  {req.OrderInfo},
		"callback_url": {req.NotifyURL},
		"mac":          {mac},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zalopay create: %w", err)
	}
	defer resp.Body.Close()

	var cr zalopayCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode zalopay response: %w", err)
	}
	if cr.ReturnCode != 1 {
		return nil, fmt.Errorf("zalopay create error: %d - %s", cr.ReturnCode, cr.ReturnMessage)
	}

	return &CreateResult{
		TxnID:       appTransID,
		RedirectURL: cr.OrderURL,
		Token:       cr.ZPTransToken,
		QRContent:   cr.QRCode,
	}, nil
}

type zalopayCallbackEnvelope struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

type zalopayCallbackData struct {
	AppID      int64  `json:"app_id"`
	AppTransID string `json:"app_trans_id"`
	AppUser    string `json:"app_user"`
	Amount     int64  `json:"amount"`
	ZPTransID  int64  `json:"zp_trans_id"`
	Channel    int    `json:"channel"`
}

// ParseCallback verifies a ZaloPay callback. The mac covers the raw
// data string under key2. ZaloPay only notifies on success, so a
// verified callback is always a successful payment.
func (p *ZaloPay) ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error) {
	var env zalopayCallbackEnvelope
	if err := json.Unmarshal(req.Body, &env); err != nil {
		return nil, fmt.Errorf("decode zalopay callback: %w", err)
	}

	if !signer.Equal(env.Mac, signer.HMACSHA256(p.cfg.Key2, env.Data)) {
		return nil, ErrSignatureInvalid
	}

	var data zalopayCallbackData
	if err := json.Unmarshal([]byte(env.Data), &data); err != nil {
		return nil, fmt.Errorf("decode zalopay callback data: %w", err)
	}

	return &Callback{
		EventID: fmt.Sprintf("%s:%d", data.AppTransID, data.ZPTransID),
		TxnID:   data.AppTransID,
		Amount:  data.Amount,
		Success: true,
		Message: "payment notified",
		Raw:     env.Data,
	}, nil
}

type zalopayQueryResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	Amount        int64  `json:"amount"`
	ZPTransID     int64  `json:"zp_trans_id"`
}

// QueryPayment asks ZaloPay for an order's state. Because ZaloPay never
// delivers failure callbacks, this is the only way a failed or expired
// payment becomes visible.
func (p *ZaloPay) QueryPayment(ctx context.Context, txnID string) (*QueryResult, error) {
	mac := signer.HMACSHA256(p.cfg.Key1, signer.JoinPipe(p.cfg.AppID, txnID, p.cfg.Key1))

	form := url.Values{
		"app_id":       {p.cfg.AppID},
		"app_trans_id": {txnID},
		"mac":          {mac},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.QueryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zalopay query: %w", err)
	}
	defer resp.Body.Close()

	var qr zalopayQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode zalopay query response: %w", err)
	}

	result := &QueryResult{TxnID: txnID, Amount: qr.Amount}
	switch qr.ReturnCode {
	case 1:
		result.Status = StatusSuccess
	case 3:
		result.Status = StatusPending
	default:
		result.Status = StatusFailed
	}
	return result, nil
}
