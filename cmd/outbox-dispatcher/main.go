package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dukaanhq/sales_backend/config"
	"github.com/dukaanhq/sales_backend/models"
	"github.com/dukaanhq/sales_backend/workflow"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	dispatcher := workflow.NewOutboxDispatcher(db, logger)
	logger.WithFields(logrus.Fields{
		"field":         "OutboxDispatcher",
		"dispatcher_id": dispatcher.DispatcherID,
	}).Info("outbox dispatcher starting")

	dispatcher.Run(sigCtx)

	logger.WithFields(logrus.Fields{"field": "OutboxDispatcher"}).Info("outbox dispatcher stopped")
}
