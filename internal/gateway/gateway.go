// internal/gateway/gateway.go
package gateway

import (
	"crypto/sha512"
	"encoding/hex"
)

// Gateway transaction status vocabulary. These are the values Midtrans
// reports through both the notification webhook and the status API.
const (
	StatusCapture    = "capture"
	StatusSettlement = "settlement"
	StatusPending    = "pending"
	StatusCancel     = "cancel"
	StatusDeny       = "deny"
	StatusExpire     = "expire"

	FraudAccept    = "accept"
	FraudChallenge = "challenge"
)

type ChargeRequest struct {
	OrderID       string
	Amount        int64
	ItemID        string
	ItemName      string
	CustomerName  string
	CustomerEmail string
}

type ChargeResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// StatusResult is the gateway's view of a transaction, from the status API
// or a verified webhook notification.
type StatusResult struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
}

// PaymentGateway is the payment provider seam. The production implementation
// talks to Midtrans; tests substitute a stub.
type PaymentGateway interface {
	CreateCharge(req *ChargeRequest) (*ChargeResult, error)
	GetStatus(orderID string) (*StatusResult, error)
}

// NotificationPayload is the JSON body Midtrans POSTs to the webhook
// endpoint. Only the fields the reconcile path needs are bound.
type NotificationPayload struct {
	OrderID           string `json:"order_id" binding:"required"`
	TransactionStatus string `json:"transaction_status" binding:"required"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// VerifySignature checks the notification's SHA-512 signature:
// sha512(order_id + status_code + gross_amount + server_key).
func (p *NotificationPayload) VerifySignature(serverKey string) bool {
	h := sha512.Sum512([]byte(p.OrderID + p.StatusCode + p.GrossAmount + serverKey))
	return hex.EncodeToString(h[:]) == p.SignatureKey
}
