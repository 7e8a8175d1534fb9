package models

import (
	"context"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"gorm.io/gorm"
)

// PendingDeduction is the backlog of inventory shortfalls: a sale was accepted
// although the item was unknown or under-stocked, and a reconciliation process
// settles the difference later. Duplicates are real backlog, not an error.
type PendingDeduction struct {
	ID              int       `gorm:"primary_key" json:"id"`
	TenantId        string    `gorm:"size:64;not null;index:idx_pending_tenant,priority:1" json:"tenant_id"`
	EstablishmentId string    `gorm:"size:64;index:idx_pending_tenant,priority:2" json:"establishment_id"`
	ItemId          string    `gorm:"size:64;not null;index" json:"item_id"`
	ItemName        string    `gorm:"size:255" json:"item_name"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	ActingUser      string    `gorm:"size:100" json:"acting_user"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// enqueuePendingDeduction records the shortfall inside the caller's sale
// transaction so the backlog row and the sale commit or roll back together.
func enqueuePendingDeduction(tx *gorm.DB, ctx context.Context, tenantId string, establishmentId string, itemId string, itemName string, qty int, actingUser string) error {
	pending := PendingDeduction{
		TenantId:        tenantId,
		EstablishmentId: establishmentId,
		ItemId:          itemId,
		ItemName:        itemName,
		Quantity:        qty,
		ActingUser:      actingUser,
	}
	if err := tx.WithContext(ctx).Create(&pending).Error; err != nil {
		return err
	}
	return PublishSaleEvent(ctx, tx, tenantId, time.Now().UTC(), pending.ID, SaleReferenceTypePending, &pending, nil, SaleEventActionCreate)
}

// ListPendingDeductions returns the tenant's backlog, oldest first.
// establishmentId can be blank to list across establishments.
func ListPendingDeductions(ctx context.Context, tenantId string, establishmentId string) ([]*PendingDeduction, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if establishmentId != "" {
		dbCtx = dbCtx.Where("establishment_id = ?", establishmentId)
	}
	var results []*PendingDeduction
	err := dbCtx.Order("id ASC").Limit(config.SearchLimit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
