// internal/gateway/midtrans.go
package gateway

import (
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/Rryannta/marketplace-digital/internal/config"
)

// MidtransGateway implements PaymentGateway against the Midtrans Snap API
// (charge creation) and Core API (status queries).
type MidtransGateway struct {
	snapClient snap.Client
	coreClient coreapi.Client
	cfg        *config.Config
}

func NewMidtransGateway(cfg *config.Config) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.Midtrans.Environment == "production" {
		env = midtrans.Production
	}

	g := &MidtransGateway{cfg: cfg}
	g.snapClient.New(cfg.Midtrans.ServerKey, env)
	g.coreClient.New(cfg.Midtrans.ServerKey, env)
	return g
}

func (g *MidtransGateway) CreateCharge(req *ChargeRequest) (*ChargeResult, error) {
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.ItemID,
				Price: req.Amount,
				Qty:   1,
				Name:  truncateItemName(req.ItemName),
			},
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
	}

	resp, err := g.snapClient.CreateTransaction(snapReq)
	if err != nil {
		return nil, fmt.Errorf("midtrans charge creation failed: %s", err.GetMessage())
	}

	return &ChargeResult{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

func (g *MidtransGateway) GetStatus(orderID string) (*StatusResult, error) {
	resp, err := g.coreClient.CheckTransaction(orderID)
	if err != nil {
		return nil, fmt.Errorf("midtrans status query failed: %s", err.GetMessage())
	}

	return &StatusResult{
		OrderID:           resp.OrderID,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		PaymentType:       resp.PaymentType,
	}, nil
}

// Midtrans rejects item names longer than 50 characters.
func truncateItemName(name string) string {
	if len(name) > 50 {
		return name[:50]
	}
	return name
}
