// internal/handlers/order.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/gateway"
	"github.com/Rryannta/marketplace-digital/internal/i18n"
	"github.com/Rryannta/marketplace-digital/internal/services"
	"github.com/Rryannta/marketplace-digital/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
	cfg          *config.Config
}

func NewOrderHandler(orderService *services.OrderService, cfg *config.Config) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		cfg:          cfg,
	}
}

// POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req struct {
		ProductID string `json:"product_id" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), err.Error())
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "product_id"), nil)
		return
	}

	handle, err := h.orderService.InitiateOrder(userID, productID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "product")
		case errors.Is(err, services.ErrProductArchived):
			utils.NotFoundResponse(c, "product")
		case errors.Is(err, services.ErrGateway):
			logrus.WithError(err).Error("Charge creation failed")
			utils.ErrorResponse(c, http.StatusBadGateway, "GATEWAY_ERROR", i18n.T(lang, i18n.KeyPaymentFailed), nil)
		default:
			logrus.WithError(err).Error("Failed to initiate order")
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyOrderCreated),
		"order":   handle,
	})
}

// GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	orders, total, err := h.orderService.ListOrders(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params))
}

// GET /orders/:id/verify
//
// The client-poll half of reconciliation: the buyer lands back from the
// payment page and the frontend asks us to check with the gateway.
func (h *OrderHandler) Verify(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	result, err := h.orderService.VerifyOrder(userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "order")
			return
		}
		logrus.WithError(err).WithField("order_id", c.Param("id")).Error("Order verification failed")
		if errors.Is(err, services.ErrGateway) {
			utils.ErrorResponse(c, http.StatusBadGateway, "GATEWAY_ERROR", i18n.T(lang, i18n.KeyPaymentPending), nil)
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}

	messageKey := i18n.KeyPaymentPending
	switch result.Status {
	case "success":
		messageKey = i18n.KeyPaymentSuccess
	case "failed":
		messageKey = i18n.KeyPaymentFailed
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, messageKey),
		"order":   result,
	})
}

// POST /payments/notifications
//
// Midtrans webhook. Unauthenticated by design; the SHA-512 signature over
// order_id, status_code, gross_amount and the server key is the auth.
// Persistence errors after a verified notification are answered with 200
// anyway so the gateway does not retry forever; the background reconciler
// picks the order up later.
func (h *OrderHandler) Webhook(c *gin.Context) {
	var payload gateway.NotificationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid payload"})
		return
	}

	if !payload.VerifySignature(h.cfg.Midtrans.ServerKey) {
		logrus.WithField("order_id", payload.OrderID).Warn("Webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"status": "invalid signature"})
		return
	}

	result, err := h.orderService.Reconcile(payload.OrderID, payload.TransactionStatus, payload.FraudStatus)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// Unknown order id: not ours, nothing to retry.
			c.JSON(http.StatusNotFound, gin.H{"status": "unknown order"})
			return
		}
		logrus.WithError(err).WithField("order_id", payload.OrderID).
			Error("Webhook reconciliation failed")
		c.JSON(http.StatusOK, gin.H{"status": "deferred"})
		return
	}

	if result.Transitioned && payload.PaymentType != "" {
		h.orderService.RecordPaymentType(payload.OrderID, payload.PaymentType)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /library
func (h *OrderHandler) Library(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	products, err := h.orderService.ListLibrary(userID)
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, products)
}

// GET /products/:id/download
func (h *OrderHandler) Download(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.NotFoundResponse(c, "product")
		return
	}

	url, err := h.orderService.GetDownloadURL(userID, productID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "product")
		case errors.Is(err, services.ErrNotEntitled):
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyDownloadForbidden))
		case errors.Is(err, services.ErrFileMissing):
			utils.NotFoundResponse(c, "product")
		default:
			logrus.WithError(err).Error("Failed to generate download URL")
			utils.InternalErrorResponse(c, "")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeyDownloadReady),
		"download_url": url,
		"expires_in":   60,
	})
}
