package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/dukaanhq/sales_backend/config"
)

type sequencedRecord struct {
	TenantId   string
	SequenceNo int64
}

// Sequence issuance has no safe fallback without redis: handing out 0 would
// collide every sale after the first. The caller must see the outage.
func TestGetSequence_ReportsUnavailableBackend(t *testing.T) {
	if config.GetRedisDB() != nil {
		t.Skip("redis connected; unavailable-backend path not reachable")
	}

	_, err := GetSequence[sequencedRecord](context.Background(), "tenant-1")
	if !errors.Is(err, ErrorDependencyUnavailable) {
		t.Fatalf("expected ErrorDependencyUnavailable, got %v", err)
	}
}

func TestGetRedisCounter_ErrorsWhenUnconnected(t *testing.T) {
	if config.GetRedisDB() != nil {
		t.Skip("redis connected; unavailable-backend path not reachable")
	}

	_, err := config.GetRedisCounter(context.Background(), "tenant-1-sale_seq")
	if !errors.Is(err, config.ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
