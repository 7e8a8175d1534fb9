package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/models"
	"github.com/joho/godotenv"
)

// Ops utility: move a tenant's DEAD outbox rows back to PENDING so the
// dispatcher retries them (for example after a Pub/Sub outage).
func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	dryRun := flag.Bool("dry-run", true, "Count rows only (no writes)")
	confirm := flag.String("confirm", "", "Type REQUEUE to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REQUEUE" {
		fmt.Fprintln(os.Stderr, "set --confirm=REQUEUE to proceed")
		os.Exit(1)
	}

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	if *dryRun {
		var count int64
		err := db.Model(&models.SaleEventRecord{}).
			Where("tenant_id = ? AND publish_status = ?", *tenantID, models.OutboxPublishStatusDead).
			Count(&count).Error
		if err != nil {
			fmt.Fprintln(os.Stderr, "count dead records:", err)
			os.Exit(1)
		}
		fmt.Printf("tenant %s has %d DEAD outbox records (dry run, nothing changed)\n", *tenantID, count)
		return
	}

	requeued, err := models.RequeueDeadSaleEvents(ctx, *tenantID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "requeue failed:", err)
		os.Exit(1)
	}
	fmt.Printf("requeued %d outbox records for tenant %s\n", requeued, *tenantID)
}
