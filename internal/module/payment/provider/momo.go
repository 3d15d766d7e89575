package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/lapstore/server/internal/module/payment/signer"
	"github.com/lapstore/server/internal/utils/random"
)

// MoMoConfig holds MoMo merchant configuration.
type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string // API base, e.g. https://payment.momo.vn
}

// MoMo implements Provider for the MoMo wallet gateway. MoMo signs a
// fixed-order raw key=value string with HMAC-SHA256; reordering fields
// breaks the signature even though the payload is JSON.
type MoMo struct {
	cfg    MoMoConfig
	client *http.Client
}

// NewMoMo creates a new MoMo adapter.
func NewMoMo(cfg MoMoConfig, client *http.Client) *MoMo {
	if client == nil {
		client = http.DefaultClient
	}
	return &MoMo{cfg: cfg, client: client}
}

// Name returns the provider name.
func (p *MoMo) Name() string {
	return "momo"
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	Deeplink   string `json:"deeplink"`
	QRCodeURL  string `json:"qrCodeUrl"`
}

// CreatePayment creates a captureWallet request.
func (p *MoMo) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	orderID := req.OrderNo + "-" + random.UpperAlphaNum(4)
	requestID := random.UpperAlphaNum(16)
	amount := strconv.FormatInt(req.Amount, 10)
	requestType := "captureWallet"
	extraData := ""

	// Documented signature field order; do not sort.
	raw := signer.JoinOrdered([]signer.Pair{
		{Key: "accessKey", Value: p.cfg.AccessKey},
		{Key: "amount", Value: amount},
		{Key: "extraData", Value: extraData},
		{Key: "ipnUrl", Value: req.NotifyURL},
		{Key: "orderId", Value: orderID},
		{Key: "orderInfo", Value: req.OrderInfo},
		{Key: "partnerCode", Value: p.cfg.PartnerCode},
		{Key: "redirectUrl", Value: req.ReturnURL},
		{Key: "requestId", Value: requestID},
		{Key: "requestType", Value: requestType},
	})

	payload := map[string]any{
		"partnerCode": p.cfg.PartnerCode,
		"accessKey":   p.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      req.Amount,
		"orderId":     orderID,
		"orderInfo":   req.OrderInfo,
		"redirectUrl": req.ReturnURL,
		"ipnUrl":      req.NotifyURL,
		"extraData":   extraData,
		"requestType": requestType,
		"lang":        "vi",
		"signature":   signer.HMACSHA256(p.cfg.SecretKey, raw),
	}

	var resp momoCreateResponse
	if err := p.post(ctx, "/v2/gateway/api/create", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ResultCode != 0 {
		return nil, fmt.Errorf("momo create error: %d - %s", resp.ResultCode, resp.Message)
	}

	return &CreateResult{
		TxnID:       orderID,
		RedirectURL: resp.PayURL,
		QRContent:   resp.QRCodeURL,
		Token:       resp.Deeplink,
	}, nil
}

type momoIPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// ParseCallback verifies a MoMo IPN. The signature covers the IPN
// fields in their documented order with the merchant access key mixed
// in, HMAC'd under the secret key.
func (p *MoMo) ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error) {
	var ipn momoIPN
	if err := json.Unmarshal(req.Body, &ipn); err != nil {
		return nil, fmt.Errorf("decode momo ipn: %w", err)
	}

	raw := signer.JoinOrdered([]signer.Pair{
		{Key: "accessKey", Value: p.cfg.AccessKey},
		{Key: "amount", Value: strconv.FormatInt(ipn.Amount, 10)},
		{Key: "extraData", Value: ipn.ExtraData},
		{Key: "message", Value: ipn.Message},
		{Key: "orderId", Value: ipn.OrderID},
		{Key: "orderInfo", Value: ipn.OrderInfo},
		{Key: "orderType", Value: ipn.OrderType},
		{Key: "partnerCode", Value: ipn.PartnerCode},
		{Key: "payType", Value: ipn.PayType},
		{Key: "requestId", Value: ipn.RequestID},
		{Key: "responseTime", Value: strconv.FormatInt(ipn.ResponseTime, 10)},
		{Key: "resultCode", Value: strconv.Itoa(ipn.ResultCode)},
		{Key: "transId", Value: strconv.FormatInt(ipn.TransID, 10)},
	})
	if !signer.Equal(ipn.Signature, signer.HMACSHA256(p.cfg.SecretKey, raw)) {
		return nil, ErrSignatureInvalid
	}

	return &Callback{
		EventID: fmt.Sprintf("%s:%d", ipn.OrderID, ipn.TransID),
		TxnID:   ipn.OrderID,
		Amount:  ipn.Amount,
		Success: ipn.ResultCode == 0,
		Message: ipn.Message,
		Raw:     string(req.Body),
	}, nil
}

type momoQueryResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// QueryPayment asks MoMo for a transaction's state.
func (p *MoMo) QueryPayment(ctx context.Context, txnID string) (*QueryResult, error) {
	requestID := random.UpperAlphaNum(16)
	raw := signer.JoinOrdered([]signer.Pair{
		{Key: "accessKey", Value: p.cfg.AccessKey},
		{Key: "orderId", Value: txnID},
		{Key: "partnerCode", Value: p.cfg.PartnerCode},
		{Key: "requestId", Value: requestID},
	})

	payload := map[string]any{
		"partnerCode": p.cfg.PartnerCode,
		"requestId":   requestID,
		"orderId":     txnID,
		"lang":        "vi",
		"signature":   signer.HMACSHA256(p.cfg.SecretKey, raw),
	}

	var resp momoQueryResponse
	if err := p.post(ctx, "/v2/gateway/api/query", payload, &resp); err != nil {
		return nil, err
	}

	result := &QueryResult{TxnID: resp.OrderID, Amount: resp.Amount}
	switch resp.ResultCode {
	case 0:
		result.Status = StatusSuccess
	case 1000, 7000, 7002, 9000:
		// Transaction initiated / being processed by the wallet.
		result.Status = StatusPending
	default:
		result.Status = StatusFailed
	}
	return result, nil
}

func (p *MoMo) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("momo request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode momo response: %w", err)
	}
	return nil
}
