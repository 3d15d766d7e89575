package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapstore/server/internal/module/payment/signer"
)

func newTestVNPay() *VNPay {
	p := NewVNPay(VNPayConfig{
		TmnCode:    "DEMO01",
		HashSecret: "vnpaysecret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
	}, nil)
	p.now = func() time.Time {
		return time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return p
}

func TestVNPayCreatePayment(t *testing.T) {
	p := newTestVNPay()

	result, err := p.CreatePayment(context.Background(), &CreateRequest{
		OrderNo:   "ORD-20250315-A1B2C",
		Amount:    330000,
		OrderInfo: "Thanh toan don hang",
		ClientIP:  "203.0.113.7",
		ReturnURL: "https://shop.example.com/payment/return",
	})
	require.NoError(t, err)

	u, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "330000"+"00", q.Get("vnp_Amount"), "amount sent x100")
	assert.Equal(t, "DEMO01", q.Get("vnp_TmnCode"))
	assert.Equal(t, "VND", q.Get("vnp_CurrCode"))
	assert.Equal(t, result.TxnID, q.Get("vnp_TxnRef"))
	assert.Contains(t, result.TxnID, "ORD-20250315-A1B2C-")
	assert.Equal(t, "20250315103000", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20250315104500", q.Get("vnp_ExpireDate"))

	// Recompute the signature over everything but the hash itself.
	params := make(map[string]string)
	for k := range q {
		if k != "vnp_SecureHash" {
			params[k] = q.Get(k)
		}
	}
	want := signer.HMACSHA512("vnpaysecret", signer.SortedQuery(params))
	assert.Equal(t, want, q.Get("vnp_SecureHash"))
}

func TestVNPayCreatePaymentFreshTxnRefPerAttempt(t *testing.T) {
	p := newTestVNPay()
	req := &CreateRequest{OrderNo: "ORD-20250315-A1B2C", Amount: 100000}

	first, err := p.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	second, err := p.CreatePayment(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.TxnID, second.TxnID)
}

func signedVNPayQuery(secret string, params map[string]string) url.Values {
	params["vnp_SecureHash"] = signer.HMACSHA512(secret, signer.SortedQuery(params))
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}

func TestVNPayParseCallbackSuccess(t *testing.T) {
	p := newTestVNPay()

	q := signedVNPayQuery("vnpaysecret", map[string]string{
		"vnp_TmnCode":           "DEMO01",
		"vnp_TxnRef":            "ORD-20250315-A1B2C-XY12",
		"vnp_Amount":            "33000000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14588801",
	})

	cb, err := p.ParseCallback(context.Background(), &CallbackRequest{Query: q})
	require.NoError(t, err)

	assert.Equal(t, "ORD-20250315-A1B2C-XY12", cb.TxnID)
	assert.Equal(t, int64(330000), cb.Amount, "amount scaled back down")
	assert.True(t, cb.Success)
	assert.Equal(t, "ORD-20250315-A1B2C-XY12:14588801:00", cb.EventID)
}

func TestVNPayParseCallbackFailedPayment(t *testing.T) {
	p := newTestVNPay()

	q := signedVNPayQuery("vnpaysecret", map[string]string{
		"vnp_TxnRef":            "ORD-20250315-A1B2C-XY12",
		"vnp_Amount":            "33000000",
		"vnp_ResponseCode":      "24",
		"vnp_TransactionStatus": "02",
		"vnp_TransactionNo":     "14588802",
	})

	cb, err := p.ParseCallback(context.Background(), &CallbackRequest{Query: q})
	require.NoError(t, err)
	assert.False(t, cb.Success)
}

func TestVNPayParseCallbackBadSignature(t *testing.T) {
	p := newTestVNPay()

	q := signedVNPayQuery("wrongsecret", map[string]string{
		"vnp_TxnRef":       "ORD-20250315-A1B2C-XY12",
		"vnp_Amount":       "33000000",
		"vnp_ResponseCode": "00",
	})

	_, err := p.ParseCallback(context.Background(), &CallbackRequest{Query: q})
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVNPayParseCallbackMissingSignature(t *testing.T) {
	p := newTestVNPay()

	q := url.Values{}
	q.Set("vnp_TxnRef", "ORD-1")
	q.Set("vnp_ResponseCode", "00")

	_, err := p.ParseCallback(context.Background(), &CallbackRequest{Query: q})
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVNPayParseCallbackTamperedAmount(t *testing.T) {
	p := newTestVNPay()

	q := signedVNPayQuery("vnpaysecret", map[string]string{
		"vnp_TxnRef":       "ORD-1",
		"vnp_Amount":       "33000000",
		"vnp_ResponseCode": "00",
	})
	q.Set("vnp_Amount", "100")

	_, err := p.ParseCallback(context.Background(), &CallbackRequest{Query: q})
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVNPayQueryPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"vnp_ResponseCode": "00",
			"vnp_TxnRef": "ORD-1-XY12",
			"vnp_Amount": "` + strconv.Itoa(330000*100) + `",
			"vnp_TransactionStatus": "00"
		}`))
	}))
	defer srv.Close()

	p := newTestVNPay()
	p.cfg.APIURL = srv.URL

	result, err := p.QueryPayment(context.Background(), "ORD-1-XY12")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, int64(330000), result.Amount)
}

func TestVNPayQueryPaymentPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"vnp_ResponseCode":"00","vnp_TxnRef":"ORD-1","vnp_Amount":"100","vnp_TransactionStatus":"01"}`))
	}))
	defer srv.Close()

	p := newTestVNPay()
	p.cfg.APIURL = srv.URL

	result, err := p.QueryPayment(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
}
