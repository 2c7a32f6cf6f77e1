// internal/services/order_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/gateway"
	"github.com/Rryannta/marketplace-digital/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gdb, mock
}

type stubGateway struct {
	chargeResult *gateway.ChargeResult
	chargeErr    error
	statusResult *gateway.StatusResult
	statusErr    error
	chargeCalls  int
	statusCalls  int
}

func (s *stubGateway) CreateCharge(req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	s.chargeCalls++
	return s.chargeResult, s.chargeErr
}

func (s *stubGateway) GetStatus(orderID string) (*gateway.StatusResult, error) {
	s.statusCalls++
	return s.statusResult, s.statusErr
}

func newTestOrderService(t *testing.T, gw gateway.PaymentGateway) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()

	gdb, mock := newMockDB(t)
	cfg := &config.Config{}
	svc := NewOrderService(gdb, gw, &StorageService{config: cfg}, cfg)
	return svc, mock
}

func orderRow(id string, buyerID, productID uuid.UUID, amount int64, status models.OrderStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "buyer_id", "product_id", "amount", "status", "created_at", "updated_at"}).
		AddRow(id, buyerID, productID, amount, string(status), time.Now(), time.Now())
}

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		name              string
		transactionStatus string
		fraudStatus       string
		want              models.OrderStatus
	}{
		{"settlement", "settlement", "", models.OrderStatusSuccess},
		{"capture accepted", "capture", "accept", models.OrderStatusSuccess},
		{"capture challenged", "capture", "challenge", models.OrderStatusPending},
		{"capture no fraud flag", "capture", "", models.OrderStatusPending},
		{"cancel", "cancel", "", models.OrderStatusFailed},
		{"deny", "deny", "", models.OrderStatusFailed},
		{"expire", "expire", "", models.OrderStatusFailed},
		{"pending", "pending", "", models.OrderStatusPending},
		{"unknown status", "refund", "", models.OrderStatusPending},
		{"empty status", "", "", models.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapGatewayStatus(tt.transactionStatus, tt.fraudStatus))
		})
	}
}

func TestReconcile_SettlementCompletesOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()
	buyerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 150000, models.OrderStatusPending))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Reconcile(orderID, "settlement", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.True(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_DuplicateNotificationIsIdempotent(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()

	// Order already settled: a duplicate settlement notification must not
	// touch the order or the sales counter again.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, uuid.New(), uuid.New(), 150000, models.OrderStatusSuccess))

	result, err := svc.Reconcile(orderID, "settlement", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.False(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_LateFailureNeverRegressesSuccess(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, uuid.New(), uuid.New(), 150000, models.OrderStatusSuccess))

	result, err := svc.Reconcile(orderID, "expire", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.False(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_CancelFailsWithoutSalesIncrement(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, uuid.New(), uuid.New(), 150000, models.OrderStatusPending))
	// Only the order row changes; no products update must follow.
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Reconcile(orderID, "cancel", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusFailed, result.Status)
	assert.True(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_ChallengedCaptureStaysPending(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, uuid.New(), uuid.New(), 150000, models.OrderStatusPending))

	result, err := svc.Reconcile(orderID, "capture", "challenge")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, result.Status)
	assert.False(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_LostRaceReportsWinner(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()
	buyerID := uuid.New()
	productID := uuid.New()

	// The conditional update hits zero rows because a concurrent caller
	// settled the order between our read and our write. The loser must
	// not increment the sales counter.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 150000, models.OrderStatusPending))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 150000, models.OrderStatusSuccess))

	result, err := svc.Reconcile(orderID, "settlement", "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.False(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_UnknownOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Reconcile("ORD-missing", "settlement", "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func productRow(id, ownerID uuid.UUID, price int64, archived bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "title", "price", "file_key", "is_archived", "sales_count"}).
		AddRow(id, ownerID, "Asset Pack", price, "product-files/pack.zip", archived, 3)
}

func TestInitiateOrder_PaidProductCreatesPendingOrder(t *testing.T) {
	gw := &stubGateway{
		chargeResult: &gateway.ChargeResult{Token: "snap-token", RedirectURL: "https://app.sandbox.midtrans.com/snap/v3/pay"},
	}
	svc, mock := newTestOrderService(t, gw)

	productID := uuid.New()
	buyerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 150000, false))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "full_name"}).
			AddRow(buyerID, "budi", "budi@example.com", "Budi Santoso"))
	mock.ExpectExec(`INSERT INTO "orders"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handle, err := svc.InitiateOrder(buyerID, productID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, handle.Status)
	assert.Equal(t, int64(150000), handle.Amount)
	assert.Equal(t, "snap-token", handle.SnapToken)
	assert.Equal(t, 1, gw.chargeCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateOrder_GatewayFailurePersistsNothing(t *testing.T) {
	gw := &stubGateway{chargeErr: assert.AnError}
	svc, mock := newTestOrderService(t, gw)

	productID := uuid.New()
	buyerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 150000, false))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(buyerID, "budi@example.com"))

	_, err := svc.InitiateOrder(buyerID, productID)
	assert.ErrorIs(t, err, ErrGateway)
	// No INSERT was expected and none may have happened.
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Full card flow for a 50000 IDR product: capture with fraud accept must
// settle the order and bump the sales counter exactly once.
func TestReconcile_CapturedCardPayment(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()
	buyerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 50000, models.OrderStatusPending))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Reconcile(orderID, "capture", "accept")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.True(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())

	// A replayed notification after settlement changes nothing.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 50000, models.OrderStatusSuccess))

	result, err = svc.Reconcile(orderID, "capture", "accept")
	require.NoError(t, err)
	assert.False(t, result.Transitioned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateOrder_FreeProductGrantsImmediately(t *testing.T) {
	gw := &stubGateway{}
	svc, mock := newTestOrderService(t, gw)

	productID := uuid.New()
	buyerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 0, false))
	// No prior acquisition.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "orders"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handle, err := svc.InitiateOrder(buyerID, productID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, handle.Status)
	assert.Equal(t, int64(0), handle.Amount)
	assert.Equal(t, 0, gw.chargeCalls, "free products never touch the gateway")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateOrder_FreeProductReacquisitionReusesOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	productID := uuid.New()
	buyerID := uuid.New()
	existingID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 0, false))
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(existingID, buyerID, productID, 0, models.OrderStatusSuccess))

	handle, err := svc.InitiateOrder(buyerID, productID)
	require.NoError(t, err)

	assert.Equal(t, existingID, handle.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateOrder_ArchivedProduct(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(productRow(productID, uuid.New(), 150000, true))

	_, err := svc.InitiateOrder(uuid.New(), productID)
	assert.ErrorIs(t, err, ErrProductArchived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOrder_PollsGatewayAndSettles(t *testing.T) {
	gw := &stubGateway{
		statusResult: &gateway.StatusResult{
			TransactionStatus: "settlement",
			PaymentType:       "qris",
		},
	}
	svc, mock := newTestOrderService(t, gw)

	orderID := models.NewOrderID()
	buyerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 150000, models.OrderStatusPending))
	// Reconcile re-reads the order before the conditional update.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, productID, 150000, models.OrderStatusPending))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "products"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders"`).
		WillReturnResult(sqlmock.NewResult(0, 1)) // payment_type

	result, err := svc.VerifyOrder(buyerID, orderID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.Equal(t, 1, gw.statusCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOrder_TerminalOrderSkipsGateway(t *testing.T) {
	gw := &stubGateway{}
	svc, mock := newTestOrderService(t, gw)

	orderID := models.NewOrderID()
	buyerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, buyerID, uuid.New(), 150000, models.OrderStatusSuccess))

	result, err := svc.VerifyOrder(buyerID, orderID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusSuccess, result.Status)
	assert.Equal(t, 0, gw.statusCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOrder_WrongBuyer(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	orderID := models.NewOrderID()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(orderRow(orderID, uuid.New(), uuid.New(), 150000, models.OrderStatusPending))

	_, err := svc.VerifyOrder(uuid.New(), orderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckEntitlement_OwnerAlwaysEntitled(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	ownerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT "owner_id" FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(ownerID))

	entitled, err := svc.CheckEntitlement(ownerID, productID)
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckEntitlement_RequiresSuccessOrder(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	buyerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT "owner_id" FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(uuid.New()))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	entitled, err := svc.CheckEntitlement(buyerID, productID)
	require.NoError(t, err)
	assert.False(t, entitled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckEntitlement_PurchasedProduct(t *testing.T) {
	svc, mock := newTestOrderService(t, &stubGateway{})

	buyerID := uuid.New()
	productID := uuid.New()

	mock.ExpectQuery(`SELECT "owner_id" FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(uuid.New()))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entitled, err := svc.CheckEntitlement(buyerID, productID)
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
