// internal/services/order_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/gateway"
	"github.com/Rryannta/marketplace-digital/internal/models"
	"github.com/Rryannta/marketplace-digital/internal/utils"
)

// Sentinel errors surfaced to handlers.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductArchived = errors.New("product is archived")
	ErrNotEntitled     = errors.New("buyer is not entitled to this product")
	ErrFileMissing     = errors.New("product has no file uploaded")
	ErrGateway         = errors.New("payment gateway error")
)

// OrderService owns the order lifecycle: charge initiation, reconciliation
// of gateway-reported payment status onto the internal order status, the
// one-time sales-counter side effect, and the entitlement checks that gate
// downloads. Reconcile is the only write path for Order.Status.
type OrderService struct {
	db      *gorm.DB
	gateway gateway.PaymentGateway
	storage *StorageService
	cfg     *config.Config
}

type OrderHandle struct {
	OrderID     string             `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	Amount      int64              `json:"amount"`
	SnapToken   string             `json:"snap_token,omitempty"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}

type ReconciliationResult struct {
	OrderID     string             `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	Transitioned bool              `json:"transitioned"`
}

func NewOrderService(db *gorm.DB, gw gateway.PaymentGateway, storage *StorageService, cfg *config.Config) *OrderService {
	return &OrderService{
		db:      db,
		gateway: gw,
		storage: storage,
		cfg:     cfg,
	}
}

// InitiateOrder starts a purchase. Free products grant entitlement
// immediately by recording a success order; paid products get a gateway
// charge first and a pending order row only once the charge exists.
func (s *OrderService) InitiateOrder(buyerID uuid.UUID, productID uuid.UUID) (*OrderHandle, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if product.IsArchived {
		return nil, ErrProductArchived
	}

	if product.Price == 0 {
		return s.grantFreeAcquisition(buyerID, &product)
	}

	var buyer models.User
	if err := s.db.First(&buyer, "id = ?", buyerID).Error; err != nil {
		return nil, fmt.Errorf("buyer not found: %w", err)
	}

	orderID := models.NewOrderID()
	charge, err := s.gateway.CreateCharge(&gateway.ChargeRequest{
		OrderID:       orderID,
		Amount:        product.Price,
		ItemID:        product.ID.String(),
		ItemName:      product.Title,
		CustomerName:  buyer.FullName,
		CustomerEmail: buyer.Email,
	})
	if err != nil {
		// No order row is persisted for a failed charge attempt.
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	order := &models.Order{
		ID:        orderID,
		BuyerID:   buyerID,
		ProductID: product.ID,
		Amount:    product.Price,
		Status:    models.OrderStatusPending,
		SnapToken: charge.Token,
	}
	if err := s.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &OrderHandle{
		OrderID:     order.ID,
		Status:      order.Status,
		Amount:      order.Amount,
		SnapToken:   charge.Token,
		RedirectURL: charge.RedirectURL,
	}, nil
}

// grantFreeAcquisition records a success order for a zero-price product
// without touching the gateway. Re-acquiring is a no-op. The free path does
// not increment sales_count; that counter tracks paid conversions only.
func (s *OrderService) grantFreeAcquisition(buyerID uuid.UUID, product *models.Product) (*OrderHandle, error) {
	var existing models.Order
	err := s.db.Where("buyer_id = ? AND product_id = ? AND status = ?",
		buyerID, product.ID, models.OrderStatusSuccess).First(&existing).Error
	if err == nil {
		return &OrderHandle{OrderID: existing.ID, Status: existing.Status, Amount: 0}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now()
	order := &models.Order{
		ID:        models.NewOrderID(),
		BuyerID:   buyerID,
		ProductID: product.ID,
		Amount:    0,
		Status:    models.OrderStatusSuccess,
		SettledAt: &now,
	}
	if err := s.db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &OrderHandle{OrderID: order.ID, Status: order.Status, Amount: 0}, nil
}

// mapGatewayStatus folds the gateway status vocabulary onto the internal
// order status. Unrecognized statuses map to pending as the safe default.
func mapGatewayStatus(transactionStatus, fraudStatus string) models.OrderStatus {
	switch transactionStatus {
	case gateway.StatusSettlement:
		return models.OrderStatusSuccess
	case gateway.StatusCapture:
		if fraudStatus == gateway.FraudAccept {
			return models.OrderStatusSuccess
		}
		// challenge or unknown fraud flag: hold the order
		return models.OrderStatusPending
	case gateway.StatusCancel, gateway.StatusDeny, gateway.StatusExpire:
		return models.OrderStatusFailed
	case gateway.StatusPending:
		return models.OrderStatusPending
	default:
		return models.OrderStatusPending
	}
}

// Reconcile maps a gateway-reported status onto the order and applies the
// success side effect. It is idempotent and safe under concurrent delivery:
// the webhook push and the client poll may both call it for the same order,
// in any sequence and any number of times. The pending->terminal transition
// is a single conditional UPDATE, and only the caller whose UPDATE actually
// changed the row increments the product's sales counter.
func (s *OrderService) Reconcile(orderID, transactionStatus, fraudStatus string) (*ReconciliationResult, error) {
	var order models.Order
	if err := s.db.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	next := mapGatewayStatus(transactionStatus, fraudStatus)

	// Idempotent short-circuit, and terminal states are immutable: late or
	// duplicate gateway messages never regress success/failed.
	if next == order.Status || order.Status.IsTerminal() {
		return &ReconciliationResult{OrderID: order.ID, Status: order.Status}, nil
	}

	now := time.Now()
	updates := map[string]interface{}{"status": next}
	if next == models.OrderStatusSuccess {
		updates["settled_at"] = &now
	}

	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order status: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Lost the race against a concurrent reconcile; report whatever
		// terminal state won.
		if err := s.db.First(&order, "id = ?", orderID).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return &ReconciliationResult{OrderID: order.ID, Status: order.Status}, nil
	}

	logrus.WithFields(logrus.Fields{
		"order_id":   orderID,
		"from":       order.Status,
		"to":         next,
		"gw_status":  transactionStatus,
		"fraud_flag": fraudStatus,
	}).Info("Order status reconciled")

	if next == models.OrderStatusSuccess {
		// Exactly one caller reaches this branch per order, so the counter
		// moves at most once per completed sale.
		if err := s.db.Model(&models.Product{}).
			Where("id = ?", order.ProductID).
			UpdateColumn("sales_count", gorm.Expr("sales_count + ?", 1)).Error; err != nil {
			// Non-fatal: the order is already settled, entitlement stands.
			logrus.WithError(err).WithField("order_id", orderID).
				Error("Failed to increment sales count")
		}
	}

	return &ReconciliationResult{OrderID: order.ID, Status: next, Transitioned: true}, nil
}

// VerifyOrder is the client-poll reconciliation trigger: it asks the
// gateway for the authoritative status and funnels it through Reconcile.
func (s *OrderService) VerifyOrder(buyerID uuid.UUID, orderID string) (*ReconciliationResult, error) {
	var order models.Order
	if err := s.db.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if order.BuyerID != buyerID {
		return nil, ErrOrderNotFound
	}

	// Nothing to ask the gateway once the order is terminal.
	if order.Status.IsTerminal() {
		return &ReconciliationResult{OrderID: order.ID, Status: order.Status}, nil
	}

	status, err := s.gateway.GetStatus(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	result, err := s.Reconcile(orderID, status.TransactionStatus, status.FraudStatus)
	if err != nil {
		return nil, err
	}

	if status.PaymentType != "" {
		s.RecordPaymentType(orderID, status.PaymentType)
	}

	return result, nil
}

// RecordPaymentType stores the payment channel the gateway reported.
// Informational only, failures are logged and swallowed.
func (s *OrderService) RecordPaymentType(orderID, paymentType string) {
	err := s.db.Model(&models.Order{}).Where("id = ?", orderID).
		UpdateColumn("payment_type", paymentType).Error
	if err != nil {
		logrus.WithError(err).WithField("order_id", orderID).Warn("Failed to record payment type")
	}
}

// CheckEntitlement reports whether the buyer may download the product:
// a success order exists, or the buyer owns the product.
func (s *OrderService) CheckEntitlement(buyerID uuid.UUID, productID uuid.UUID) (bool, error) {
	var product models.Product
	if err := s.db.Select("owner_id").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	if product.OwnerID == buyerID {
		return true, nil
	}

	var count int64
	if err := s.db.Model(&models.Order{}).
		Where("buyer_id = ? AND product_id = ? AND status = ?",
			buyerID, productID, models.OrderStatusSuccess).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	return count > 0, nil
}

// GetDownloadURL gates the product file behind the entitlement check and
// returns a short-lived presigned URL.
func (s *OrderService) GetDownloadURL(buyerID uuid.UUID, productID uuid.UUID) (string, error) {
	entitled, err := s.CheckEntitlement(buyerID, productID)
	if err != nil {
		return "", err
	}
	if !entitled {
		return "", ErrNotEntitled
	}

	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}

	if product.FileKey == "" {
		return "", ErrFileMissing
	}

	return s.storage.GeneratePresignedURL(s.cfg.AWS.FileBucket, product.FileKey, 60*time.Second)
}

// ListLibrary returns the products the buyer is entitled to through
// success orders, most recent acquisition first.
func (s *OrderService) ListLibrary(buyerID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := s.db.
		Joins("JOIN orders ON orders.product_id = products.id").
		Where("orders.buyer_id = ? AND orders.status = ?", buyerID, models.OrderStatusSuccess).
		Order("orders.created_at DESC").
		Preload("Owner").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch library: %w", err)
	}

	return products, nil
}

// ListOrders returns the buyer's purchase history.
func (s *OrderService) ListOrders(buyerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{}).
		Where("buyer_id = ?", buyerID).
		Preload("Product")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return orders, total, nil
}

// SellerStats aggregates revenue, sales and listing counts for the
// seller dashboard. Only success orders count toward revenue.
func (s *OrderService) SellerStats(ownerID uuid.UUID) (map[string]interface{}, error) {
	var totalRevenue int64
	var totalSales int64
	var productCount int64

	if err := s.db.Model(&models.Order{}).
		Joins("JOIN products ON products.id = orders.product_id").
		Where("products.owner_id = ? AND orders.status = ?", ownerID, models.OrderStatusSuccess).
		Select("COALESCE(SUM(orders.amount), 0)").
		Scan(&totalRevenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	if err := s.db.Model(&models.Order{}).
		Joins("JOIN products ON products.id = orders.product_id").
		Where("products.owner_id = ? AND orders.status = ?", ownerID, models.OrderStatusSuccess).
		Count(&totalSales).Error; err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}

	if err := s.db.Model(&models.Product{}).
		Where("owner_id = ?", ownerID).
		Count(&productCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	return map[string]interface{}{
		"total_revenue": totalRevenue,
		"total_sales":   totalSales,
		"product_count": productCount,
		"currency":      "IDR",
	}, nil
}
