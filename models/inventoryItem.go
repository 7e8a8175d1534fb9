package models

import (
	"context"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/utils"
	"gorm.io/gorm"
)

// Items whose post-deduction quantity falls to this margin (or below their own
// min_quantity) trigger a low-stock warning on the sale.
const lowStockMargin = 2

type InventoryItem struct {
	ID              int       `gorm:"primary_key" json:"id"`
	TenantId        string    `gorm:"size:64;not null;uniqueIndex:idx_item_tenant,priority:1" json:"tenant_id" binding:"required"`
	EstablishmentId string    `gorm:"size:64;index" json:"establishment_id"`
	ItemId          string    `gorm:"size:64;not null;uniqueIndex:idx_item_tenant,priority:2" json:"item_id" binding:"required"`
	ItemName        string    `gorm:"size:255;not null" json:"item_name" binding:"required"`
	Quantity        int       `gorm:"not null;default:0" json:"quantity"`
	MinQuantity     int       `gorm:"not null;default:0" json:"min_quantity"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryItem struct {
	ItemId          string `json:"item_id" validate:"required"`
	EstablishmentId string `json:"establishment_id"`
	ItemName        string `json:"item_name" validate:"required"`
	Quantity        int    `json:"quantity" validate:"gte=0"`
	MinQuantity     int    `json:"min_quantity" validate:"gte=0"`
}

// DeductionStatus is the outcome of a single atomic try-deduct.
type DeductionStatus string

const (
	DeductionDeducted     DeductionStatus = "DEDUCTED"
	DeductionLowStock     DeductionStatus = "LOW_STOCK_WARNING"
	DeductionInsufficient DeductionStatus = "INSUFFICIENT"
)

func (input *NewInventoryItem) validate(ctx context.Context, tenantId string, id int) error {
	if err := validate.Struct(input); err != nil {
		return &utils.ValidationError{Fields: utils.ProcessValidationErrors(err)}
	}
	if err := utils.ValidateUnique[InventoryItem](ctx, tenantId, "item_id", input.ItemId, id); err != nil {
		return utils.NewValidationError("item_id", "duplicate item_id")
	}
	return nil
}

func CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {

	db := config.GetDB()
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}

	if err := input.validate(ctx, tenantId, 0); err != nil {
		return nil, err
	}

	item := InventoryItem{
		TenantId:        tenantId,
		EstablishmentId: input.EstablishmentId,
		ItemId:          input.ItemId,
		ItemName:        input.ItemName,
		Quantity:        input.Quantity,
		MinQuantity:     input.MinQuantity,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), item.ID, SaleReferenceTypeInventoryItem, &item, nil, SaleEventActionCreate)
	})
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisList[InventoryItem](tenantId)
	return &item, nil
}

func UpdateInventoryItem(ctx context.Context, id int, input *NewInventoryItem) (*InventoryItem, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	if err := input.validate(ctx, tenantId, id); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[InventoryItem](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}
	oldItem := *item

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(item).Updates(map[string]interface{}{
			"ItemName":        input.ItemName,
			"EstablishmentId": input.EstablishmentId,
			"Quantity":        input.Quantity,
			"MinQuantity":     input.MinQuantity,
		}).Error; err != nil {
			return err
		}
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), item.ID, SaleReferenceTypeInventoryItem, item, &oldItem, SaleEventActionUpdate)
	})
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisItem[InventoryItem](id)
	_ = utils.RemoveRedisList[InventoryItem](tenantId)
	return item, nil
}

func DeleteInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}

	item, err := utils.FetchModel[InventoryItem](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(item).Error; err != nil {
			return err
		}
		return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), item.ID, SaleReferenceTypeInventoryItem, nil, item, SaleEventActionDelete)
	})
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisItem[InventoryItem](id)
	_ = utils.RemoveRedisList[InventoryItem](tenantId)
	return item, nil
}

// LookupInventoryItem returns the item, or nil when the tenant does not stock it.
func LookupInventoryItem(ctx context.Context, tenantId string, itemId string) (*InventoryItem, error) {
	item, err := utils.FetchModelWhere[InventoryItem](ctx, tenantId, "item_id = ?", itemId)
	if err == utils.ErrorRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// tryDeduct atomically deducts qty from the item's stock. The guard lives in
// the WHERE clause so two concurrent deductions can never jointly overdraw:
// the UPDATE only applies when quantity >= qty, and RowsAffected tells us
// whether we won.
func tryDeduct(tx *gorm.DB, ctx context.Context, tenantId string, itemId string, qty int) (DeductionStatus, error) {

	res := tx.WithContext(ctx).Model(&InventoryItem{}).
		Where("tenant_id = ? AND item_id = ? AND quantity >= ?", tenantId, itemId, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return DeductionInsufficient, nil
	}

	// re-read inside the same transaction for the low-stock check
	var item InventoryItem
	if err := tx.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ?", tenantId, itemId).
		First(&item).Error; err != nil {
		return "", err
	}
	if item.Quantity <= lowStockMargin || item.Quantity <= item.MinQuantity {
		return DeductionLowStock, nil
	}
	return DeductionDeducted, nil
}

// GetLowStockItems re-evaluates per call; results are not cached.
func GetLowStockItems(ctx context.Context, tenantId string) ([]*InventoryItem, error) {
	db := config.GetDB()
	var items []*InventoryItem
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND quantity <= min_quantity", tenantId).
		Order("item_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetInventoryItems lists a tenant's items, redis or db, cache result.
func GetInventoryItems(ctx context.Context, tenantId string) ([]*InventoryItem, error) {
	results, err := utils.RetrieveRedisList[InventoryItem](tenantId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[InventoryItem](ctx, tenantId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[InventoryItem](results, tenantId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
