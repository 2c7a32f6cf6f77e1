// internal/handlers/order_test.go
package handlers

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/gateway"
	"github.com/Rryannta/marketplace-digital/internal/models"
	"github.com/Rryannta/marketplace-digital/internal/services"
)

const testServerKey = "SB-Mid-server-testkey"

func newWebhookRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Midtrans.ServerKey = testServerKey

	storage, err := services.NewStorageService(cfg)
	require.NoError(t, err)

	orderService := services.NewOrderService(gdb, nil, storage, cfg)
	handler := NewOrderHandler(orderService, cfg)

	r := gin.New()
	r.POST("/v1/payments/notifications", handler.Webhook)
	return r, mock
}

func signNotification(orderID, statusCode, grossAmount string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + testServerKey))
	return hex.EncodeToString(h[:])
}

func postNotification(t *testing.T, r *gin.Engine, payload gateway.NotificationPayload) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/notifications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	r, mock := newWebhookRouter(t)

	w := postNotification(t, r, gateway.NotificationPayload{
		OrderID:           models.NewOrderID(),
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
		SignatureKey:      "forged",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	// No database access happens before the signature check passes.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhook_RejectsMissingFields(t *testing.T) {
	r, mock := newWebhookRouter(t)

	w := postNotification(t, r, gateway.NotificationPayload{
		TransactionStatus: "settlement",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhook_SettlementNotification(t *testing.T) {
	r, mock := newWebhookRouter(t)

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "buyer_id", "product_id", "amount", "status", "created_at", "updated_at"}).
			AddRow(orderID, uuid.New(), uuid.New(), 150000, "pending", time.Now(), time.Now()))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // payment_type

	w := postNotification(t, r, gateway.NotificationPayload{
		OrderID:           orderID,
		TransactionStatus: "settlement",
		PaymentType:       "qris",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
		SignatureKey:      signNotification(orderID, "200", "150000.00"),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhook_UnknownOrder(t *testing.T) {
	r, mock := newWebhookRouter(t)

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := postNotification(t, r, gateway.NotificationPayload{
		OrderID:           orderID,
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "150000.00",
		SignatureKey:      signNotification(orderID, "200", "150000.00"),
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
