package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox publish statuses for SaleEventRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type SaleEventRecord struct {
	ID                  int               `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	TenantId            string            `gorm:"size:64;not null;index" json:"tenant_id"`
	TransactionDateTime time.Time         `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int               `json:"reference_id"`
	ReferenceType       SaleReferenceType `gorm:"type:enum('SL','IT','CL','PD')" json:"reference_type"`
	Action              SaleEventAction   `gorm:"type:enum('C','U','D')" json:"action"`
	OldObj              []byte            `gorm:"type:blob" json:"old_obj"`
	NewObj              []byte            `gorm:"type:blob" json:"new_obj"`
	// Publish happens after commit via the outbox dispatcher.
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishSaleEvent implements the transactional outbox: it writes the event
// record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func PublishSaleEvent(ctx context.Context, db *gorm.DB, tenantId string, transactionDateTime time.Time, refId int, refType SaleReferenceType, obj interface{}, oldObj interface{}, action SaleEventAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if action == SaleEventActionCreate || action == SaleEventActionUpdate {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if action == SaleEventActionUpdate || action == SaleEventActionDelete {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := SaleEventRecord{
		TenantId:            tenantId,
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              action,
		NewObj:              objInByte,
		OldObj:              oldObjInByte,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return db.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToSaleEvent(record SaleEventRecord) config.SaleEvent {
	return config.SaleEvent{
		ID:                  record.ID,
		TenantId:            record.TenantId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              string(record.Action),
		OldObj:              record.OldObj,
		NewObj:              record.NewObj,
		CorrelationId:       record.CorrelationId,
	}
}

// RequeueDeadSaleEvents moves a tenant's DEAD outbox rows back to PENDING so
// the dispatcher picks them up again. Guarded by a redis lock so two operators
// cannot requeue the same tenant concurrently.
func RequeueDeadSaleEvents(ctx context.Context, tenantId string) (int64, error) {
	release, err := utils.TenantLock(ctx, tenantId, "OutboxRequeue", "Outbox", "RequeueDeadSaleEvents")
	if err != nil {
		return 0, err
	}
	defer release()

	db := config.GetDB()
	res := db.WithContext(ctx).Model(&SaleEventRecord{}).
		Where("tenant_id = ? AND publish_status = ?", tenantId, OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"last_publish_error": nil,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
