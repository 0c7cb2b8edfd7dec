package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || itemsCreatedTotal == nil ||
		verificationJobsTotal == nil || activeFetches == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveFetch("success", 3, 1, 250*time.Millisecond)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("expected fetchesTotal{success} to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(itemsCreatedTotal); val != 3 {
		t.Errorf("expected itemsCreatedTotal to be 3, got %f", val)
	}
	if val := testutil.ToFloat64(itemsSkippedTotal); val != 1 {
		t.Errorf("expected itemsSkippedTotal to be 1, got %f", val)
	}

	IncActiveFetches()
	IncActiveFetches()
	DecActiveFetches()
	if val := testutil.ToFloat64(activeFetches); val != 1 {
		t.Errorf("expected activeFetches to be 1, got %f", val)
	}

	ObserveJobTerminal("completed")
	if val := testutil.ToFloat64(verificationJobsTotal.WithLabelValues("completed")); val != 1 {
		t.Errorf("expected verificationJobsTotal{completed} to be 1, got %f", val)
	}
}
