package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Sale struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"size:64;not null;uniqueIndex:idx_sale_tenant,priority:1;index:idx_sale_credit,priority:1" json:"tenant_id" binding:"required"`
	SequenceNo      int64           `gorm:"not null;index" json:"sequence_no"`
	SaleId          string          `gorm:"size:64;not null;uniqueIndex:idx_sale_tenant,priority:2" json:"sale_id"`
	EstablishmentId string          `gorm:"size:64;index" json:"establishment_id"`
	ItemId          string          `gorm:"size:64;not null;index" json:"item_id"`
	ItemName        string          `gorm:"size:255;not null" json:"item_name"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	PricePerUnit    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_per_unit"`
	// TotalPrice is computed once at creation (quantity * price_per_unit) and
	// never recomputed.
	TotalPrice         decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"total_price"`
	PaymentMethod      PaymentMethod        `gorm:"type:enum('CASH','UPI','CREDIT');not null" json:"payment_method"`
	CustomerId         *string              `gorm:"size:64;index:idx_sale_credit,priority:2" json:"customer_id"`
	IsUdhaar           bool                 `gorm:"not null;default:false;index:idx_sale_credit,priority:3" json:"is_udhaar"`
	UdhaarPaid         bool                 `gorm:"not null;default:false;index:idx_sale_credit,priority:4" json:"udhaar_paid"`
	UdhaarPaidOn       *time.Time           `json:"udhaar_paid_on"`
	AmountReceived     decimal.NullDecimal  `gorm:"type:decimal(20,4)" json:"amount_received"`
	ActingUser         string               `gorm:"size:100;index" json:"acting_user"`
	StockDisposition   StockDisposition     `gorm:"type:enum('DEDUCTED','LOW_STOCK_WARNING','PENDING_DEDUCTION','ITEM_UNKNOWN');not null" json:"stock_disposition"`
	LowStockWarn       bool                 `gorm:"not null;default:false" json:"low_stock_warn"`
	StockStatusMessage string               `gorm:"size:500" json:"stock_status_message"`
	InvoiceData        *string              `gorm:"type:text" json:"invoice_data"`
	CreatedAt          time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSale struct {
	EstablishmentId string          `json:"establishment_id" validate:"required"`
	ItemId          string          `json:"item_id" validate:"required"`
	ItemName        string          `json:"item_name" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	PricePerUnit    decimal.Decimal `json:"price_per_unit"`
	PaymentMethod   PaymentMethod   `json:"payment_method" validate:"required"`
	CustomerId      *string         `json:"customer_id"`
	IsUdhaar        bool            `json:"is_udhaar"`
	ActingUser      string          `json:"acting_user" validate:"required"`
}

// SaleResult carries the persisted sale plus the human-readable stock warning
// (localized), when the inventory side did not resolve cleanly.
type SaleResult struct {
	Sale    *Sale  `json:"sale"`
	Warning string `json:"warning,omitempty"`
}

type PaymentUpdate struct {
	SaleId         string          `json:"sale_id" validate:"required"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	PaymentMethod  PaymentMethod   `json:"payment_method" validate:"required"`
	ReceivedOn     *time.Time      `json:"received_on"`
}

type SaleFilter struct {
	EstablishmentId string
	CustomerId      string
	ActingUser      string
	PaymentMethod   PaymentMethod
	IsUdhaar        *bool
	UdhaarPaid      *bool
	LowStockWarn    *bool
	FromDate        *time.Time
	ToDate          *time.Time
}

func (input *NewSale) validate() error {
	if err := validate.Struct(input); err != nil {
		return &utils.ValidationError{Fields: utils.ProcessValidationErrors(err)}
	}
	if !input.PaymentMethod.IsValid() {
		return utils.NewValidationError("payment_method", "must be one of CASH, UPI, CREDIT")
	}
	if input.PricePerUnit.IsNegative() {
		return utils.NewValidationError("price_per_unit", "must not be negative")
	}
	if input.IsUdhaar && (input.CustomerId == nil || *input.CustomerId == "") {
		return utils.NewValidationError("customer_id", "required for udhaar sales")
	}
	return nil
}

// CreateSale is the sale orchestration pipeline: credit exposure first, then
// inventory resolution, then the atomic sale insert with its outbox event.
// Everything after the credit gate runs in one DB transaction, so a failed
// insert rolls the deduction back instead of leaking stock. Udhaar sales are
// serialized per customer with an advisory lock held through commit, so two
// concurrent sales cannot jointly exceed the limit.
func CreateSale(ctx context.Context, input *NewSale) (*SaleResult, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	totalPrice := input.PricePerUnit.Mul(decimal.NewFromInt(int64(input.Quantity)))

	db := config.GetDB()
	var result *SaleResult
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if input.IsUdhaar {
			// GET_LOCK is connection-scoped; conn is pinned for the whole
			// closure, so the lock outlives the transaction commit below.
			if err := acquireCustomerCreditLock(conn, tenantId, *input.CustomerId); err != nil {
				return err
			}
			defer releaseCustomerCreditLock(conn, tenantId, *input.CustomerId)
		}
		return conn.Transaction(func(tx *gorm.DB) error {
			// 1. credit before stock: a credit rejection must not cost real inventory
			if input.IsUdhaar {
				exposure, err := ExposureCheck(tx, ctx, tenantId, input.EstablishmentId, *input.CustomerId, totalPrice)
				if err != nil {
					return err
				}
				if !exposure.Allowed {
					return &CreditLimitExceededError{
						CustomerId:   *input.CustomerId,
						CurrentTotal: exposure.CurrentTotal,
						Limit:        exposure.Limit,
						Proposed:     totalPrice,
					}
				}
			}

			// 2. resolve inventory
			disposition, warning, err := resolveStock(tx, ctx, tenantId, input)
			if err != nil {
				return err
			}

			// 3. persist the sale
			seqNo, err := utils.GetSequence[Sale](ctx, tenantId)
			if err != nil {
				return err
			}
			sale := Sale{
				TenantId:           tenantId,
				SequenceNo:         seqNo,
				SaleId:             fmt.Sprintf("SL-%06d", seqNo),
				EstablishmentId:    input.EstablishmentId,
				ItemId:             input.ItemId,
				ItemName:           input.ItemName,
				Quantity:           input.Quantity,
				PricePerUnit:       input.PricePerUnit,
				TotalPrice:         totalPrice,
				PaymentMethod:      input.PaymentMethod,
				CustomerId:         input.CustomerId,
				IsUdhaar:           input.IsUdhaar,
				ActingUser:         input.ActingUser,
				StockDisposition:   disposition,
				LowStockWarn:       disposition == StockDispositionLowStockWarning,
				StockStatusMessage: warning,
			}
			if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return utils.ErrorConflict
				}
				return err
			}

			if err := PublishSaleEvent(ctx, tx, tenantId, sale.CreatedAt, sale.ID, SaleReferenceTypeSale, &sale, nil, SaleEventActionCreate); err != nil {
				return err
			}

			result = &SaleResult{Sale: &sale, Warning: warning}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveStock applies the inventory side of a sale inside the caller's
// transaction. Unknown and under-stocked items do not fail the sale: they
// leave stock untouched and enqueue a pending deduction instead.
func resolveStock(tx *gorm.DB, ctx context.Context, tenantId string, input *NewSale) (StockDisposition, string, error) {

	var item InventoryItem
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantId, input.ItemId).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := enqueuePendingDeduction(tx, ctx, tenantId, input.EstablishmentId, input.ItemId, input.ItemName, input.Quantity, input.ActingUser); err != nil {
			return "", "", err
		}
		msg := utils.GetMessageFromContext(ctx, utils.MsgKeyItemNotInInventory, map[string]string{"item": input.ItemName})
		return StockDispositionItemUnknown, msg, nil
	}
	if err != nil {
		return "", "", err
	}

	status, err := tryDeduct(tx, ctx, tenantId, input.ItemId, input.Quantity)
	if err != nil {
		return "", "", err
	}
	switch status {
	case DeductionDeducted:
		return StockDispositionDeducted, "", nil
	case DeductionLowStock:
		msg := utils.GetMessageFromContext(ctx, utils.MsgKeyLowStockWarn, map[string]string{"item": input.ItemName})
		return StockDispositionLowStockWarning, msg, nil
	default: // insufficient, no mutation happened
		if err := enqueuePendingDeduction(tx, ctx, tenantId, input.EstablishmentId, input.ItemId, input.ItemName, input.Quantity, input.ActingUser); err != nil {
			return "", "", err
		}
		msg := utils.GetMessageFromContext(ctx, utils.MsgKeyInsufficientStock, map[string]string{"item": input.ItemName})
		return StockDispositionPendingDeduction, msg, nil
	}
}

// markUdhaarPaid flips udhaar_paid exactly once. The guard lives in the WHERE
// clause, so a second call (or a call against a cash sale or unknown sale_id)
// simply matches zero rows and reports updated=false.
func markUdhaarPaid(tx *gorm.DB, ctx context.Context, tenantId string, input *PaymentUpdate) (bool, error) {
	paidOn := time.Now().UTC()
	if input.ReceivedOn != nil {
		paidOn = input.ReceivedOn.UTC()
	}
	res := tx.WithContext(ctx).Model(&Sale{}).
		Where("tenant_id = ? AND sale_id = ? AND is_udhaar = 1 AND udhaar_paid = 0", tenantId, input.SaleId).
		Updates(map[string]interface{}{
			"udhaar_paid":     true,
			"udhaar_paid_on":  &paidOn,
			"amount_received": input.AmountReceived,
			"payment_method":  input.PaymentMethod,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReceiveUdhaarPayment reconciles a credit sale. Returns RecordNotFound when
// the sale is missing, not udhaar, or already settled; the credit ledger needs
// no explicit call because exposure is derived by re-summing unpaid sales.
func ReceiveUdhaarPayment(ctx context.Context, input *PaymentUpdate) (*Sale, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, &utils.ValidationError{Fields: utils.ProcessValidationErrors(err)}
	}
	if input.PaymentMethod != PaymentMethodCash && input.PaymentMethod != PaymentMethodUpi {
		return nil, utils.NewValidationError("payment_method", "must be CASH or UPI")
	}

	db := config.GetDB()
	var sale *Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// snapshot through tx so a concurrent settlement cannot slip a
		// stale old_obj into the event
		var oldSale Sale
		if err := tx.WithContext(ctx).
			Where("tenant_id = ? AND sale_id = ?", tenantId, input.SaleId).
			First(&oldSale).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		updated, err := markUdhaarPaid(tx, ctx, tenantId, input)
		if err != nil {
			return err
		}
		if !updated {
			return utils.ErrorRecordNotFound
		}

		// re-read inside the transaction to pick up the settled fields
		var refreshed Sale
		if err := tx.WithContext(ctx).
			Where("tenant_id = ? AND sale_id = ?", tenantId, input.SaleId).
			First(&refreshed).Error; err != nil {
			return err
		}
		sale = &refreshed
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), sale.ID, SaleReferenceTypeSale, sale, &oldSale, SaleEventActionUpdate)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// AttachSaleInvoice stores invoice data on a sale. Additive only: it never
// touches the sale's transactional fields.
func AttachSaleInvoice(ctx context.Context, saleId string, invoiceData string) (*Sale, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}

	sale, err := utils.FetchModelWhere[Sale](ctx, tenantId, "sale_id = ?", saleId)
	if err != nil {
		return nil, err
	}
	oldSale := *sale

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(sale).Update("invoice_data", &invoiceData).Error; err != nil {
			return err
		}
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), sale.ID, SaleReferenceTypeSale, sale, &oldSale, SaleEventActionUpdate)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func GetSale(ctx context.Context, saleId string) (*Sale, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	return utils.FetchModelWhere[Sale](ctx, tenantId, "sale_id = ?", saleId)
}

// GetSales lists the tenant's sales, newest first, capped at the search limit.
func GetSales(ctx context.Context, filter *SaleFilter) ([]*Sale, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if filter != nil {
		if filter.EstablishmentId != "" {
			dbCtx = dbCtx.Where("establishment_id = ?", filter.EstablishmentId)
		}
		if filter.CustomerId != "" {
			dbCtx = dbCtx.Where("customer_id = ?", filter.CustomerId)
		}
		if filter.ActingUser != "" {
			dbCtx = dbCtx.Where("acting_user = ?", filter.ActingUser)
		}
		if filter.PaymentMethod != "" {
			dbCtx = dbCtx.Where("payment_method = ?", filter.PaymentMethod)
		}
		if filter.IsUdhaar != nil {
			dbCtx = dbCtx.Where("is_udhaar = ?", *filter.IsUdhaar)
		}
		if filter.UdhaarPaid != nil {
			dbCtx = dbCtx.Where("udhaar_paid = ?", *filter.UdhaarPaid)
		}
		if filter.LowStockWarn != nil {
			dbCtx = dbCtx.Where("low_stock_warn = ?", *filter.LowStockWarn)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("created_at >= ?", filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("created_at <= ?", filter.ToDate)
		}
	}

	var sales []*Sale
	err := dbCtx.Order("created_at DESC, id DESC").Limit(config.SearchLimit).Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}
