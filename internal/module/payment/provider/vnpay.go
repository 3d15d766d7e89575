package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lapstore/server/internal/module/payment/signer"
	"github.com/lapstore/server/internal/utils/random"
)

// VNPayConfig holds VNPay merchant configuration.
type VNPayConfig struct {
	TmnCode    string // Terminal/merchant code
	HashSecret string // HMAC-SHA512 secret
	PayURL     string // Hosted payment page
	APIURL     string // querydr endpoint
}

// VNPay implements Provider for the VNPay gateway. Payment creation is
// a signed redirect URL; only status queries call out over HTTP.
type VNPay struct {
	cfg    VNPayConfig
	client *http.Client
	now    func() time.Time
}

// NewVNPay creates a new VNPay adapter.
func NewVNPay(cfg VNPayConfig, client *http.Client) *VNPay {
	if client == nil {
		client = http.DefaultClient
	}
	return &VNPay{cfg: cfg, client: client, now: time.Now}
}

// Name returns the provider name.
func (p *VNPay) Name() string {
	return "vnpay"
}

// CreatePayment builds the signed redirect URL. VNPay amounts are sent
// multiplied by 100; the rest of the system works in whole VND.
func (p *VNPay) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	// TxnRef must be unique per attempt; retries get a fresh suffix.
	txnRef := req.OrderNo + "-" + random.UpperAlphaNum(4)
	now := p.now()

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    p.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  req.ReturnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": now.Format("20060102150405"),
		"vnp_ExpireDate": now.Add(15 * time.Minute).Format("20060102150405"),
	}

	canonical := signer.SortedQuery(params)
	secureHash := signer.HMACSHA512(p.cfg.HashSecret, canonical)

	return &CreateResult{
		TxnID:       txnRef,
		RedirectURL: p.cfg.PayURL + "?" + canonical + "&vnp_SecureHash=" + secureHash,
	}, nil
}

// ParseCallback verifies a VNPay IPN. The signature covers every vnp_*
// query parameter except the hash fields themselves, canonicalized the
// same way as the outbound request.
func (p *VNPay) ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error) {
	params := make(map[string]string)
	for k := range req.Query {
		if strings.HasPrefix(k, "vnp_") {
			params[k] = req.Query.Get(k)
		}
	}

	got := params["vnp_SecureHash"]
	delete(params, "vnp_SecureHash")
	delete(params, "vnp_SecureHashType")
	if got == "" {
		return nil, ErrSignatureInvalid
	}

	want := signer.HMACSHA512(p.cfg.HashSecret, signer.SortedQuery(params))
	if !signer.Equal(got, want) {
		return nil, ErrSignatureInvalid
	}

	rawAmount, _ := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	responseCode := params["vnp_ResponseCode"]
	txnStatus := params["vnp_TransactionStatus"]

	return &Callback{
		EventID: fmt.Sprintf("%s:%s:%s", params["vnp_TxnRef"], params["vnp_TransactionNo"], responseCode),
		TxnID:   params["vnp_TxnRef"],
		Amount:  rawAmount / 100,
		Success: responseCode == "00" && txnStatus == "00",
		Message: fmt.Sprintf("response_code=%s transaction_status=%s", responseCode, txnStatus),
		Raw:     req.Query.Encode(),
	}, nil
}

type vnpayQueryResponse struct {
	ResponseCode      string `json:"vnp_ResponseCode"`
	Message           string `json:"vnp_Message"`
	TxnRef            string `json:"vnp_TxnRef"`
	Amount            string `json:"vnp_Amount"`
	TransactionStatus string `json:"vnp_TransactionStatus"`
}

// QueryPayment calls the querydr API. Its signature is a pipe-joined
// field list, not the sorted-query form used by pay requests.
func (p *VNPay) QueryPayment(ctx context.Context, txnID string) (*QueryResult, error) {
	requestID := random.UpperAlphaNum(16)
	now := p.now().Format("20060102150405")
	orderInfo := "query " + txnID

	raw := signer.JoinPipe(requestID, "2.1.0", "querydr", p.cfg.TmnCode, txnID, now, now, "127.0.0.1", orderInfo)
	payload := map[string]string{
		"vnp_RequestId":       requestID,
		"vnp_Version":         "2.1.0",
		"vnp_Command":         "querydr",
		"vnp_TmnCode":         p.cfg.TmnCode,
		"vnp_TxnRef":          txnID,
		"vnp_OrderInfo":       orderInfo,
		"vnp_TransactionDate": now,
		"vnp_CreateDate":      now,
		"vnp_IpAddr":          "127.0.0.1",
		"vnp_SecureHash":      signer.HMACSHA512(p.cfg.HashSecret, raw),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vnpay query: %w", err)
	}
	defer resp.Body.Close()

	var qr vnpayQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode vnpay query response: %w", err)
	}
	if qr.ResponseCode != "00" {
		return nil, fmt.Errorf("vnpay query error: %s - %s", qr.ResponseCode, qr.Message)
	}

	amount, _ := strconv.ParseInt(qr.Amount, 10, 64)
	result := &QueryResult{TxnID: qr.TxnRef, Amount: amount / 100}
	switch qr.TransactionStatus {
	case "00":
		result.Status = StatusSuccess
	case "01":
		result.Status = StatusPending
	default:
		result.Status = StatusFailed
	}
	return result, nil
}
