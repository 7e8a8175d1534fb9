package models_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dukaanhq/sales_backend/models"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: these tests are DB-free. Validation runs before any ledger access, so
// a rejected request must never reach the database.

func validSaleInput() *models.NewSale {
	customer := "c-1"
	return &models.NewSale{
		EstablishmentId: "est-1",
		ItemId:          "item-1",
		ItemName:        "pen",
		Quantity:        2,
		PricePerUnit:    decimal.NewFromInt(10),
		PaymentMethod:   models.PaymentMethodCredit,
		CustomerId:      &customer,
		IsUdhaar:        true,
		ActingUser:      "shopkeeper",
	}
}

func TestCreateSale_RequiresTenant(t *testing.T) {
	_, err := models.CreateSale(context.Background(), validSaleInput())
	if err == nil {
		t.Fatal("expected error without tenant in context")
	}
	if _, ok := err.(*utils.ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestCreateSale_RejectsNonPositiveQuantity(t *testing.T) {
	ctx := utils.SetTenantIdInContext(context.Background(), "tenant-1")

	input := validSaleInput()
	input.Quantity = 0
	if _, err := models.CreateSale(ctx, input); err == nil {
		t.Fatal("expected error for quantity 0")
	}

	input = validSaleInput()
	input.Quantity = -3
	if _, err := models.CreateSale(ctx, input); err == nil {
		t.Fatal("expected error for negative quantity")
	}
}

func TestCreateSale_RejectsUdhaarWithoutCustomer(t *testing.T) {
	ctx := utils.SetTenantIdInContext(context.Background(), "tenant-1")

	input := validSaleInput()
	input.CustomerId = nil
	_, err := models.CreateSale(ctx, input)
	if err == nil {
		t.Fatal("expected error for udhaar sale without customer_id")
	}
	verr, ok := err.(*utils.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if _, present := verr.Fields["customer_id"]; !present {
		t.Fatalf("expected customer_id in error fields, got %v", verr.Fields)
	}

	empty := ""
	input = validSaleInput()
	input.CustomerId = &empty
	if _, err := models.CreateSale(ctx, input); err == nil {
		t.Fatal("expected error for udhaar sale with blank customer_id")
	}
}

func TestCreateSale_RejectsUnsupportedPaymentMethod(t *testing.T) {
	ctx := utils.SetTenantIdInContext(context.Background(), "tenant-1")

	input := validSaleInput()
	input.PaymentMethod = models.PaymentMethod("CHEQUE")
	if _, err := models.CreateSale(ctx, input); err == nil {
		t.Fatal("expected error for unsupported payment method")
	}
}

func TestCreateSale_RejectsNegativePrice(t *testing.T) {
	ctx := utils.SetTenantIdInContext(context.Background(), "tenant-1")

	input := validSaleInput()
	input.PricePerUnit = decimal.NewFromInt(-5)
	if _, err := models.CreateSale(ctx, input); err == nil {
		t.Fatal("expected error for negative price_per_unit")
	}
}

func TestReceiveUdhaarPayment_RejectsCreditAsSettlementMethod(t *testing.T) {
	ctx := utils.SetTenantIdInContext(context.Background(), "tenant-1")

	_, err := models.ReceiveUdhaarPayment(ctx, &models.PaymentUpdate{
		SaleId:         "SL-000001",
		AmountReceived: decimal.NewFromInt(100),
		PaymentMethod:  models.PaymentMethodCredit,
	})
	if err == nil {
		t.Fatal("expected error settling udhaar with CREDIT")
	}
	if _, ok := err.(*utils.ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestCreditLimitExceededError_MessageIncludesAmounts(t *testing.T) {
	err := &models.CreditLimitExceededError{
		CustomerId:   "c-9",
		CurrentTotal: decimal.NewFromInt(900),
		Limit:        decimal.NewFromInt(1000),
		Proposed:     decimal.NewFromInt(150),
	}
	msg := err.Error()
	for _, want := range []string{"c-9", "900", "1000", "150"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}
