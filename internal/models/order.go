// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is one purchase attempt and its lifecycle. The primary key is the
// externally visible order id ("ORD-<uuid>") which doubles as the payment
// gateway correlation key. Rows are never deleted; Status is written only
// by the order service's reconcile path.
type Order struct {
	ID        string    `json:"id" gorm:"primary_key;size:64"`
	BuyerID   uuid.UUID `json:"buyer_id" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	// Amount equals the product price at creation time.
	Amount      int64       `json:"amount" gorm:"not null"`
	Status      OrderStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	SnapToken   string      `json:"snap_token,omitempty" gorm:"size:255"`
	PaymentType string      `json:"payment_type,omitempty" gorm:"size:50"`
	SettledAt   *time.Time  `json:"settled_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Relationships
	Buyer   User    `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

// NewOrderID generates the external order identifier sent to the gateway.
func NewOrderID() string {
	return "ORD-" + uuid.NewString()
}
