package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func refHMAC256(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func refHMAC512(key, data string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACSHA256(t *testing.T) {
	assert.Equal(t, refHMAC256("secret", "hello"), HMACSHA256("secret", "hello"))
	assert.NotEqual(t, HMACSHA256("secret", "hello"), HMACSHA256("secret", "hello2"))
	assert.NotEqual(t, HMACSHA256("secret", "hello"), HMACSHA256("secret2", "hello"))
}

func TestHMACSHA512(t *testing.T) {
	assert.Equal(t, refHMAC512("secret", "hello"), HMACSHA512("secret", "hello"))
	assert.Len(t, HMACSHA512("secret", "hello"), 128)
}

func TestEqual(t *testing.T) {
	sig := HMACSHA256("key", "payload")

	assert.True(t, Equal(sig, sig))
	assert.True(t, Equal(sig, "ABCDEF"[:0]+sig), "identical strings")
	assert.True(t, Equal("ABCDEF01", "abcdef01"), "case-insensitive")
	assert.False(t, Equal(sig, sig[:len(sig)-1]))
	assert.False(t, Equal(sig, ""))
}

func TestSortedQuery(t *testing.T) {
	got := SortedQuery(map[string]string{
		"vnp_Version": "2.1.0",
		"vnp_Amount":  "33000000",
		"vnp_TmnCode": "DEMO01",
		"vnp_Empty":   "",
	})
	// Keys sorted, empty values dropped.
	assert.Equal(t, "vnp_Amount=33000000&vnp_TmnCode=DEMO01&vnp_Version=2.1.0", got)
}

func TestSortedQueryEscapesValues(t *testing.T) {
	got := SortedQuery(map[string]string{
		"vnp_OrderInfo": "Thanh toan don hang",
	})
	assert.Equal(t, "vnp_OrderInfo=Thanh+toan+don+hang", got)
}

func TestJoinOrdered(t *testing.T) {
	got := JoinOrdered([]Pair{
		{"accessKey", "ak"},
		{"amount", "330000"},
		{"orderId", "ORD-1"},
	})
	assert.Equal(t, "accessKey=ak&amount=330000&orderId=ORD-1", got)
}

func TestJoinOrderedPreservesOrder(t *testing.T) {
	// Fixed documented order, not lexicographic.
	got := JoinOrdered([]Pair{
		{"zebra", "1"},
		{"alpha", "2"},
	})
	assert.Equal(t, "zebra=1&alpha=2", got)
}

func TestJoinPipe(t *testing.T) {
	assert.Equal(t, "2554|trans-1|user|330000", JoinPipe("2554", "trans-1", "user", "330000"))
	assert.Equal(t, "a||c", JoinPipe("a", "", "c"), "empty fields preserved")
}
