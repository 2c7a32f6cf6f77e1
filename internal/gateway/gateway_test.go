// internal/gateway/gateway_test.go
package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signPayload(p *NotificationPayload, serverKey string) string {
	h := sha512.Sum512([]byte(p.OrderID + p.StatusCode + p.GrossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func TestVerifySignature(t *testing.T) {
	serverKey := "SB-Mid-server-testkey"

	payload := &NotificationPayload{
		OrderID:           "ORD-7c9e6679-7425-40de-944b-e07fc1f90ae7",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
	}
	payload.SignatureKey = signPayload(payload, serverKey)

	assert.True(t, payload.VerifySignature(serverKey))
}

func TestVerifySignature_WrongServerKey(t *testing.T) {
	payload := &NotificationPayload{
		OrderID:     "ORD-7c9e6679-7425-40de-944b-e07fc1f90ae7",
		StatusCode:  "200",
		GrossAmount: "150000.00",
	}
	payload.SignatureKey = signPayload(payload, "SB-Mid-server-testkey")

	assert.False(t, payload.VerifySignature("SB-Mid-server-otherkey"))
}

func TestVerifySignature_TamperedAmount(t *testing.T) {
	serverKey := "SB-Mid-server-testkey"

	payload := &NotificationPayload{
		OrderID:     "ORD-7c9e6679-7425-40de-944b-e07fc1f90ae7",
		StatusCode:  "200",
		GrossAmount: "150000.00",
	}
	payload.SignatureKey = signPayload(payload, serverKey)
	payload.GrossAmount = "1.00"

	assert.False(t, payload.VerifySignature(serverKey))
}

func TestVerifySignature_MissingSignature(t *testing.T) {
	payload := &NotificationPayload{
		OrderID:     "ORD-7c9e6679-7425-40de-944b-e07fc1f90ae7",
		StatusCode:  "200",
		GrossAmount: "150000.00",
	}

	assert.False(t, payload.VerifySignature("SB-Mid-server-testkey"))
}
