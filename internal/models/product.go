// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product is a downloadable digital asset listed for sale. Price is stored
// in the smallest currency unit (IDR has no subunit, so price == rupiah).
// Once a product has a completed sale it is never hard-deleted; archival
// keeps existing entitlements resolvable.
type Product struct {
	BaseModel
	OwnerID     uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	Price       int64          `json:"price" gorm:"not null;check:price >= 0"`
	FileKey     string         `json:"-" gorm:"size:512"`
	CoverKey    string         `json:"-" gorm:"size:512"`
	CoverURL    string         `json:"cover_url" gorm:"size:512"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	IsArchived  bool           `json:"is_archived" gorm:"default:false;index"`
	ViewCount   int64          `json:"view_count" gorm:"default:0"`
	// SalesCount only increases, and only via the order reconciliation
	// path, at most once per completed order.
	SalesCount int64 `json:"sales_count" gorm:"default:0"`

	// Relationships
	Owner  User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Orders []Order `json:"orders,omitempty" gorm:"foreignKey:ProductID"`
}
