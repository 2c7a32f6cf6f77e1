// internal/services/reconciler.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/models"
)

// Reconciler is the background sweep for orders stuck in pending. Webhooks
// can be dropped and buyers do not always return to the verify page, so on
// an interval it re-queries the gateway for every pending order past the
// grace window and funnels the answer through OrderService.Reconcile.
type Reconciler struct {
	db     *gorm.DB
	orders *OrderService
	cfg    *config.Config
}

func NewReconciler(db *gorm.DB, orders *OrderService, cfg *config.Config) *Reconciler {
	return &Reconciler{db: db, orders: orders, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.Midtrans.PollIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Info("Order reconciler started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Order reconciler stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	grace := time.Duration(r.cfg.Midtrans.PendingGraceMinutes) * time.Minute
	cutoff := time.Now().Add(-grace)

	var orders []models.Order
	err := r.db.
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(100).
		Find(&orders).Error
	if err != nil {
		logrus.WithError(err).Error("Reconciler failed to list pending orders")
		return
	}

	if len(orders) == 0 {
		return
	}

	logrus.WithField("count", len(orders)).Info("Reconciling stuck pending orders")

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}

		status, err := r.orders.gateway.GetStatus(order.ID)
		if err != nil {
			// Gateway hiccups resolve themselves; the next sweep retries.
			logrus.WithError(err).WithField("order_id", order.ID).
				Warn("Reconciler could not fetch gateway status")
			continue
		}

		result, err := r.orders.Reconcile(order.ID, status.TransactionStatus, status.FraudStatus)
		if err != nil {
			logrus.WithError(err).WithField("order_id", order.ID).
				Error("Reconciler failed to reconcile order")
			continue
		}

		if result.Transitioned {
			logrus.WithFields(logrus.Fields{
				"order_id": order.ID,
				"status":   result.Status,
			}).Info("Reconciler settled stuck order")
		}
	}
}
