package models

import (
	"context"
	"time"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/utils"
	"github.com/shopspring/decimal"
)

// SalesSummary aggregates a tenant's sales, udhaar and collections over a
// date window.
type SalesSummary struct {
	TenantId         string          `json:"tenant_id"`
	FromDate         time.Time       `json:"from_date"`
	ToDate           time.Time       `json:"to_date"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalUdhaar      decimal.Decimal `json:"total_udhaar"`
	TotalCollections decimal.Decimal `json:"collections"`
	SalesCount       int64           `json:"sales_count"`
}

type TopCustomer struct {
	CustomerId string          `json:"customer_id"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

type summaryRow struct {
	TotalSales       decimal.NullDecimal
	TotalUdhaar      decimal.NullDecimal
	TotalCollections decimal.NullDecimal
	SalesCount       int64
}

// GetSalesSummary computes the window aggregates in a single pass over the
// tenant's sales. Re-evaluated per call, never cached.
func GetSalesSummary(ctx context.Context, establishmentId string, fromDate time.Time, toDate time.Time) (*SalesSummary, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Sale{}).
		Where("tenant_id = ? AND created_at >= ? AND created_at <= ?", tenantId, fromDate, toDate)
	if establishmentId != "" {
		dbCtx = dbCtx.Where("establishment_id = ?", establishmentId)
	}

	var row summaryRow
	err := dbCtx.Select(`
		sum(total_price) AS total_sales,
		sum(CASE WHEN is_udhaar = 1 THEN total_price ELSE 0 END) AS total_udhaar,
		sum(CASE WHEN udhaar_paid = 1 THEN amount_received ELSE 0 END) AS total_collections,
		count(*) AS sales_count
	`).Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &SalesSummary{
		TenantId:         tenantId,
		FromDate:         fromDate,
		ToDate:           toDate,
		TotalSales:       row.TotalSales.Decimal,
		TotalUdhaar:      row.TotalUdhaar.Decimal,
		TotalCollections: row.TotalCollections.Decimal,
		SalesCount:       row.SalesCount,
	}, nil
}

// GetDailySalesSummary covers one calendar day in UTC.
func GetDailySalesSummary(ctx context.Context, establishmentId string, day time.Time) (*SalesSummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return GetSalesSummary(ctx, establishmentId, from, to)
}

// GetWeeklySalesSummary covers seven days starting at weekStart (UTC).
func GetWeeklySalesSummary(ctx context.Context, establishmentId string, weekStart time.Time) (*SalesSummary, error) {
	from := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return GetSalesSummary(ctx, establishmentId, from, to)
}

// GetTopCustomers ranks customers by lifetime sales total.
func GetTopCustomers(ctx context.Context, limit int) ([]*TopCustomer, error) {

	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.NewValidationError("tenant_id", "required")
	}
	if limit <= 0 || limit > config.SearchLimit {
		limit = 5
	}

	db := config.GetDB()
	var results []*TopCustomer
	err := db.WithContext(ctx).Model(&Sale{}).
		Select("customer_id, sum(total_price) AS total_sales").
		Where("tenant_id = ? AND customer_id IS NOT NULL", tenantId).
		Group("customer_id").
		Order("total_sales DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
