package models

import (
	"context"
	"fmt"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Per-customer limit applied when a tenant never configured one.
var DefaultCreditLimit = decimal.NewFromInt(1000)

// CreditAccount holds a customer's configured udhaar limit. The outstanding
// balance is never stored here: it is derived by re-summing unpaid udhaar
// sales, so marking a sale paid needs no compensating write on this row.
type CreditAccount struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TenantId        string          `gorm:"size:64;not null;uniqueIndex:idx_credit_customer,priority:1" json:"tenant_id" binding:"required"`
	EstablishmentId string          `gorm:"size:64;uniqueIndex:idx_credit_customer,priority:2" json:"establishment_id"`
	CustomerId      string          `gorm:"size:64;not null;uniqueIndex:idx_credit_customer,priority:3" json:"customer_id" binding:"required"`
	CreditLimit     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"credit_limit"`
	UpdatedBy       string          `gorm:"size:100" json:"updated_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCreditLimit struct {
	EstablishmentId string          `json:"establishment_id"`
	CustomerId      string          `json:"customer_id" validate:"required"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
}

type ExposureResult struct {
	Allowed      bool            `json:"allowed"`
	CurrentTotal decimal.Decimal `json:"current_total"`
	Limit        decimal.Decimal `json:"limit"`
}

// CreditLimitExceededError is returned when a proposed udhaar sale would push
// the customer past their configured limit.
type CreditLimitExceededError struct {
	CustomerId   string
	CurrentTotal decimal.Decimal
	Limit        decimal.Decimal
	Proposed     decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %s: outstanding %s + proposed %s > limit %s",
		e.CustomerId, e.CurrentTotal.String(), e.Proposed.String(), e.Limit.String())
}

// SetCustomerCreditLimit upserts the configured limit. The account row is
// created implicitly on first configuration.
func SetCustomerCreditLimit(ctx context.Context, input *NewCreditLimit) (*CreditAccount, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, &utils.ValidationError{Fields: utils.ProcessValidationErrors(err)}
	}
	if input.CreditLimit.IsNegative() {
		return nil, utils.NewValidationError("credit_limit", "must not be negative")
	}
	actor, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	var account *CreditAccount
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := utils.FetchModelWhere[CreditAccount](ctx, tenantId,
			"establishment_id = ? AND customer_id = ?", input.EstablishmentId, input.CustomerId)
		if err == utils.ErrorRecordNotFound {
			account = &CreditAccount{
				TenantId:        tenantId,
				EstablishmentId: input.EstablishmentId,
				CustomerId:      input.CustomerId,
				CreditLimit:     input.CreditLimit,
				UpdatedBy:       actor,
			}
			if err := tx.Create(account).Error; err != nil {
				return err
			}
			return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), account.ID, SaleReferenceTypeCreditAccount, account, nil, SaleEventActionCreate)
		}
		if err != nil {
			return err
		}
		oldAccount := *existing
		if err := tx.Model(existing).Updates(map[string]interface{}{
			"CreditLimit": input.CreditLimit,
			"UpdatedBy":   actor,
		}).Error; err != nil {
			return err
		}
		account = existing
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), account.ID, SaleReferenceTypeCreditAccount, account, &oldAccount, SaleEventActionUpdate)
	})
	if err != nil {
		return nil, err
	}

	_ = config.RemoveRedisKey(creditLimitCacheKey(tenantId, input.EstablishmentId, input.CustomerId))
	return account, nil
}

func creditLimitCacheKey(tenantId, establishmentId, customerId string) string {
	return "CreditLimit:" + tenantId + ":" + establishmentId + ":" + customerId
}

// getCreditLimit resolves the configured limit, redis or db, platform default
// when never set.
func getCreditLimit(tx *gorm.DB, ctx context.Context, tenantId string, establishmentId string, customerId string) (decimal.Decimal, error) {
	cacheKey := creditLimitCacheKey(tenantId, establishmentId, customerId)
	var cached *string
	exists, err := config.GetRedisObject(cacheKey, &cached)
	if err == nil && exists && cached != nil {
		if limit, perr := decimal.NewFromString(*cached); perr == nil {
			return limit, nil
		}
	}

	var account CreditAccount
	err = tx.WithContext(ctx).
		Where("tenant_id = ? AND establishment_id = ? AND customer_id = ?", tenantId, establishmentId, customerId).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return DefaultCreditLimit, nil
	}
	if err != nil {
		return decimal.Zero, err
	}

	s := account.CreditLimit.String()
	_ = config.SetRedisObject(cacheKey, &s, utils.GetCacheLifespan())
	return account.CreditLimit, nil
}

// ExposureCheck derives the customer's outstanding udhaar by summing unpaid
// udhaar sale totals and compares outstanding + proposed against the limit.
// Pure read; backed by idx_sale_credit (tenant, customer, is_udhaar,
// udhaar_paid) so large tenants do not table-scan.
func ExposureCheck(tx *gorm.DB, ctx context.Context, tenantId string, establishmentId string, customerId string, proposed decimal.Decimal) (*ExposureResult, error) {

	limit, err := getCreditLimit(tx, ctx, tenantId, establishmentId, customerId)
	if err != nil {
		return nil, err
	}

	var total decimal.NullDecimal
	err = tx.WithContext(ctx).Model(&Sale{}).
		Select("sum(total_price)").
		Where("tenant_id = ? AND establishment_id = ? AND customer_id = ? AND is_udhaar = 1 AND udhaar_paid = 0", tenantId, establishmentId, customerId).
		Scan(&total).Error
	if err != nil {
		return nil, err
	}
	currentTotal := decimal.Zero
	if total.Valid {
		currentTotal = total.Decimal
	}

	return &ExposureResult{
		Allowed:      currentTotal.Add(proposed).LessThanOrEqual(limit),
		CurrentTotal: currentTotal,
		Limit:        limit,
	}, nil
}

// CheckCustomerExposure is the read-only entry point (no sale is being made).
func CheckCustomerExposure(ctx context.Context, establishmentId string, customerId string, proposed decimal.Decimal) (*ExposureResult, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	db := config.GetDB()
	return ExposureCheck(db, ctx, tenantId, establishmentId, customerId, proposed)
}

// acquireCustomerCreditLock serializes udhaar acceptance per customer across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB connection that runs the sale transaction.
func acquireCustomerCreditLock(conn *gorm.DB, tenantId string, customerId string) error {
	lockName := fmt.Sprintf("credit:%s:%s", tenantId, customerId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire credit lock for customer_id=%s", customerId)
	}
	return nil
}

func releaseCustomerCreditLock(conn *gorm.DB, tenantId string, customerId string) {
	lockName := fmt.Sprintf("credit:%s:%s", tenantId, customerId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
