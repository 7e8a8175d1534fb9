package models_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/models"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/shopspring/decimal"
)

// End-to-end orchestration against real MySQL + Redis. Covers the stock
// dispositions, the credit gate, payment reconciliation, and the concurrent
// deduction race.
func TestSaleOrchestration_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sales_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	const tenantId = "tenant-1"
	ctx = utils.SetTenantIdInContext(ctx, tenantId)
	ctx = utils.SetUserNameInContext(ctx, "shopkeeper")
	ctx = utils.SetLanguageInContext(ctx, "en")

	newItem := func(itemId, name string, qty, minQty int) *models.InventoryItem {
		t.Helper()
		item, err := models.CreateInventoryItem(ctx, &models.NewInventoryItem{
			ItemId:          itemId,
			EstablishmentId: "est-1",
			ItemName:        name,
			Quantity:        qty,
			MinQuantity:     minQty,
		})
		if err != nil {
			t.Fatalf("CreateInventoryItem(%s): %v", itemId, err)
		}
		return item
	}

	itemQty := func(itemId string) int {
		t.Helper()
		item, err := models.LookupInventoryItem(ctx, tenantId, itemId)
		if err != nil {
			t.Fatalf("LookupInventoryItem(%s): %v", itemId, err)
		}
		if item == nil {
			t.Fatalf("item %s vanished", itemId)
		}
		return item.Quantity
	}

	cashSale := func(itemId, itemName string, qty int, price int64) *models.SaleResult {
		t.Helper()
		res, err := models.CreateSale(ctx, &models.NewSale{
			EstablishmentId: "est-1",
			ItemId:          itemId,
			ItemName:        itemName,
			Quantity:        qty,
			PricePerUnit:    decimal.NewFromInt(price),
			PaymentMethod:   models.PaymentMethodCash,
			ActingUser:      "shopkeeper",
		})
		if err != nil {
			t.Fatalf("CreateSale(%s): %v", itemId, err)
		}
		return res
	}

	udhaarSale := func(customer, itemId, itemName string, qty int, price int64) (*models.SaleResult, error) {
		t.Helper()
		return models.CreateSale(ctx, &models.NewSale{
			EstablishmentId: "est-1",
			ItemId:          itemId,
			ItemName:        itemName,
			Quantity:        qty,
			PricePerUnit:    decimal.NewFromInt(price),
			PaymentMethod:   models.PaymentMethodCredit,
			CustomerId:      &customer,
			IsUdhaar:        true,
			ActingUser:      "shopkeeper",
		})
	}

	t.Run("FullDeductionToZeroWarnsLowStock", func(t *testing.T) {
		newItem("pen", "pen", 10, 0)

		res := cashSale("pen", "pen", 10, 5)
		if res.Sale.StockDisposition != models.StockDispositionLowStockWarning {
			t.Fatalf("expected LOW_STOCK_WARNING, got %s", res.Sale.StockDisposition)
		}
		if !res.Sale.LowStockWarn {
			t.Fatal("expected low_stock_warn flag set")
		}
		if res.Warning == "" {
			t.Fatal("expected a localized low-stock warning")
		}
		if got := itemQty("pen"); got != 0 {
			t.Fatalf("expected stock 0, got %d", got)
		}
	})

	t.Run("InsufficientStockQueuesPendingDeduction", func(t *testing.T) {
		newItem("pencil", "pencil", 3, 0)

		res := cashSale("pencil", "pencil", 10, 3)
		if res.Sale.StockDisposition != models.StockDispositionPendingDeduction {
			t.Fatalf("expected PENDING_DEDUCTION, got %s", res.Sale.StockDisposition)
		}
		if got := itemQty("pencil"); got != 3 {
			t.Fatalf("expected stock unchanged at 3, got %d", got)
		}

		pending, err := models.ListPendingDeductions(ctx, tenantId, "est-1")
		if err != nil {
			t.Fatalf("ListPendingDeductions: %v", err)
		}
		found := false
		for _, p := range pending {
			if p.ItemId == "pencil" && p.Quantity == 10 {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected a pending deduction for pencil qty 10, got %+v", pending)
		}
	})

	t.Run("UnknownItemTaggedItemUnknown", func(t *testing.T) {
		res := cashSale("ghost-item", "ghost", 2, 7)
		if res.Sale.StockDisposition != models.StockDispositionItemUnknown {
			t.Fatalf("expected ITEM_UNKNOWN, got %s", res.Sale.StockDisposition)
		}
		if res.Warning == "" {
			t.Fatal("expected a localized item-unknown warning")
		}
	})

	t.Run("CreditLimitRejectsBeforeTouchingStock", func(t *testing.T) {
		newItem("rice", "rice", 50, 0)
		if _, err := models.SetCustomerCreditLimit(ctx, &models.NewCreditLimit{
			EstablishmentId: "est-1",
			CustomerId:      "cust-c",
			CreditLimit:     decimal.NewFromInt(1000),
		}); err != nil {
			t.Fatalf("SetCustomerCreditLimit: %v", err)
		}

		// existing unpaid udhaar of 900
		if _, err := udhaarSale("cust-c", "rice", "rice", 9, 100); err != nil {
			t.Fatalf("seed udhaar sale: %v", err)
		}

		_, err := udhaarSale("cust-c", "rice", "rice", 3, 50) // 150 proposed
		var limitErr *models.CreditLimitExceededError
		if !errors.As(err, &limitErr) {
			t.Fatalf("expected CreditLimitExceededError, got %v", err)
		}
		if got := itemQty("rice"); got != 41 {
			t.Fatalf("expected stock untouched by rejected sale at 41, got %d", got)
		}
	})

	t.Run("PaymentReconciliationRestoresHeadroom", func(t *testing.T) {
		newItem("oil", "oil", 100, 0)

		if _, err := udhaarSale("cust-d", "oil", "oil", 4, 100); err != nil { // 400
			t.Fatalf("first udhaar sale: %v", err)
		}
		second, err := udhaarSale("cust-d", "oil", "oil", 5, 100) // 500, default limit 1000
		if err != nil {
			t.Fatalf("second udhaar sale: %v", err)
		}

		paid, err := models.ReceiveUdhaarPayment(ctx, &models.PaymentUpdate{
			SaleId:         second.Sale.SaleId,
			AmountReceived: decimal.NewFromInt(500),
			PaymentMethod:  models.PaymentMethodUpi,
		})
		if err != nil {
			t.Fatalf("ReceiveUdhaarPayment: %v", err)
		}
		if !paid.UdhaarPaid || paid.UdhaarPaidOn == nil {
			t.Fatalf("expected settled sale, got %+v", paid)
		}

		exposure, err := models.CheckCustomerExposure(ctx, "est-1", "cust-d", decimal.Zero)
		if err != nil {
			t.Fatalf("CheckCustomerExposure: %v", err)
		}
		if !exposure.CurrentTotal.Equal(decimal.NewFromInt(400)) {
			t.Fatalf("expected outstanding 400 after settlement, got %s", exposure.CurrentTotal)
		}

		// idempotence: settling again reports not-found, state unchanged
		_, err = models.ReceiveUdhaarPayment(ctx, &models.PaymentUpdate{
			SaleId:         second.Sale.SaleId,
			AmountReceived: decimal.NewFromInt(500),
			PaymentMethod:  models.PaymentMethodUpi,
		})
		if !errors.Is(err, utils.ErrorRecordNotFound) {
			t.Fatalf("expected RecordNotFound on double settlement, got %v", err)
		}
		again, err := models.GetSale(ctx, second.Sale.SaleId)
		if err != nil {
			t.Fatalf("GetSale: %v", err)
		}
		if !again.UdhaarPaidOn.Equal(*paid.UdhaarPaidOn) {
			t.Fatal("expected settlement timestamp unchanged after second call")
		}

		// the settlement event must snapshot the pre-payment state
		var event models.SaleEventRecord
		if err := config.GetDB().
			Where("tenant_id = ? AND reference_id = ? AND action = ?",
				tenantId, second.Sale.ID, models.SaleEventActionUpdate).
			First(&event).Error; err != nil {
			t.Fatalf("fetch settlement event: %v", err)
		}
		if !bytes.Contains(event.OldObj, []byte(`"udhaar_paid":false`)) {
			t.Fatalf("expected old snapshot with udhaar_paid false, got %s", event.OldObj)
		}
		if !bytes.Contains(event.NewObj, []byte(`"udhaar_paid":true`)) {
			t.Fatalf("expected new snapshot with udhaar_paid true, got %s", event.NewObj)
		}
	})

	t.Run("ExposureScopedToEstablishment", func(t *testing.T) {
		newItem("salt", "salt", 100, 0)
		customer := "cust-e"

		if _, err := models.CreateSale(ctx, &models.NewSale{
			EstablishmentId: "est-1",
			ItemId:          "salt",
			ItemName:        "salt",
			Quantity:        3,
			PricePerUnit:    decimal.NewFromInt(100),
			PaymentMethod:   models.PaymentMethodCredit,
			CustomerId:      &customer,
			IsUdhaar:        true,
			ActingUser:      "shopkeeper",
		}); err != nil {
			t.Fatalf("udhaar sale in est-1: %v", err)
		}

		here, err := models.CheckCustomerExposure(ctx, "est-1", customer, decimal.Zero)
		if err != nil {
			t.Fatalf("CheckCustomerExposure est-1: %v", err)
		}
		if !here.CurrentTotal.Equal(decimal.NewFromInt(300)) {
			t.Fatalf("expected outstanding 300 in est-1, got %s", here.CurrentTotal)
		}

		elsewhere, err := models.CheckCustomerExposure(ctx, "est-2", customer, decimal.Zero)
		if err != nil {
			t.Fatalf("CheckCustomerExposure est-2: %v", err)
		}
		if !elsewhere.CurrentTotal.IsZero() {
			t.Fatalf("expected zero outstanding in est-2, got %s", elsewhere.CurrentTotal)
		}
	})

	t.Run("RoundTripTotalPriceIsExact", func(t *testing.T) {
		newItem("sugar", "sugar", 5, 0)

		res, err := models.CreateSale(ctx, &models.NewSale{
			EstablishmentId: "est-1",
			ItemId:          "sugar",
			ItemName:        "sugar",
			Quantity:        3,
			PricePerUnit:    decimal.RequireFromString("19.99"),
			PaymentMethod:   models.PaymentMethodUpi,
			ActingUser:      "shopkeeper",
		})
		if err != nil {
			t.Fatalf("CreateSale: %v", err)
		}

		fetched, err := models.GetSale(ctx, res.Sale.SaleId)
		if err != nil {
			t.Fatalf("GetSale: %v", err)
		}
		if !fetched.TotalPrice.Equal(decimal.RequireFromString("59.97")) {
			t.Fatalf("expected total 59.97 exactly, got %s", fetched.TotalPrice)
		}
	})

	t.Run("ConcurrentDeductionsExactlyOneWins", func(t *testing.T) {
		newItem("lastone", "last one", 1, 0)

		var wg sync.WaitGroup
		results := make([]*models.SaleResult, 2)
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = models.CreateSale(ctx, &models.NewSale{
					EstablishmentId: "est-1",
					ItemId:          "lastone",
					ItemName:        "last one",
					Quantity:        1,
					PricePerUnit:    decimal.NewFromInt(20),
					PaymentMethod:   models.PaymentMethodCash,
					ActingUser:      "shopkeeper",
				})
			}(i)
		}
		wg.Wait()

		deducted, pendingCount := 0, 0
		for i := 0; i < 2; i++ {
			if errs[i] != nil {
				t.Fatalf("CreateSale[%d]: %v", i, errs[i])
			}
			switch results[i].Sale.StockDisposition {
			case models.StockDispositionDeducted, models.StockDispositionLowStockWarning:
				deducted++
			case models.StockDispositionPendingDeduction:
				pendingCount++
			}
		}
		if deducted != 1 || pendingCount != 1 {
			t.Fatalf("expected one deduction and one pending, got deducted=%d pending=%d", deducted, pendingCount)
		}
		if got := itemQty("lastone"); got != 0 {
			t.Fatalf("expected stock 0, got %d", got)
		}
	})

	t.Run("SummaryAggregatesWindow", func(t *testing.T) {
		from := time.Now().UTC().Add(-time.Hour)
		to := time.Now().UTC().Add(time.Hour)
		summary, err := models.GetSalesSummary(ctx, "", from, to)
		if err != nil {
			t.Fatalf("GetSalesSummary: %v", err)
		}
		if summary.SalesCount == 0 {
			t.Fatal("expected sales counted in window")
		}
		if summary.TotalSales.LessThan(summary.TotalUdhaar) {
			t.Fatalf("total sales %s cannot be below udhaar %s", summary.TotalSales, summary.TotalUdhaar)
		}
		if !summary.TotalCollections.Equal(decimal.NewFromInt(500)) {
			t.Fatalf("expected collections 500, got %s", summary.TotalCollections)
		}

		top, err := models.GetTopCustomers(ctx, 5)
		if err != nil {
			t.Fatalf("GetTopCustomers: %v", err)
		}
		if len(top) == 0 {
			t.Fatal("expected at least one top customer")
		}
	})

	t.Run("OutboxRecordsWrittenWithSales", func(t *testing.T) {
		db := config.GetDB()
		var count int64
		if err := db.Model(&models.SaleEventRecord{}).
			Where("tenant_id = ? AND reference_type = ? AND publish_status = ?",
				tenantId, models.SaleReferenceTypeSale, models.OutboxPublishStatusPending).
			Count(&count).Error; err != nil {
			t.Fatalf("count outbox records: %v", err)
		}
		if count == 0 {
			t.Fatal("expected pending outbox records for created sales")
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sales-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sales-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sales_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
