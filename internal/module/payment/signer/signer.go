// Package signer implements the HMAC signature schemes and parameter
// canonicalizations used by the Vietnamese payment gateways. Each
// gateway signs a different serialization of the request, so the
// canonicalization is part of the contract, not a detail.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// HMACSHA256 returns the lowercase hex HMAC-SHA256 of data under key.
func HMACSHA256(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA512 returns the lowercase hex HMAC-SHA512 of data under key.
func HMACSHA512(key, data string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares two hex signatures in constant time, ignoring case.
func Equal(a, b string) bool {
	x := []byte(strings.ToLower(a))
	y := []byte(strings.ToLower(b))
	if len(x) != len(y) {
		return false
	}
	return subtle.ConstantTimeCompare(x, y) == 1
}

// SortedQuery canonicalizes params the VNPay way: keys sorted
// lexicographically, key and value percent-encoded as query components,
// empty values skipped, pairs joined with '&'.
func SortedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Pair is one key=value element of a fixed-order canonical string.
type Pair struct {
	Key   string
	Value string
}

// JoinOrdered canonicalizes pairs the MoMo way: the documented field
// order is preserved exactly, values are raw (no escaping), pairs
// joined with '&'.
func JoinOrdered(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// JoinPipe canonicalizes fields the ZaloPay way: raw values joined
// with '|', preserving order and empty fields.
func JoinPipe(fields ...string) string {
	return strings.Join(fields, "|")
}
