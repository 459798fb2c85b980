package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackWebhook(t *testing.T) {
	before := testutil.ToFloat64(webhookDeliveries.WithLabelValues("duplicate"))
	TrackWebhook("duplicate")
	TrackWebhook("duplicate")
	assert.Equal(t, before+2, testutil.ToFloat64(webhookDeliveries.WithLabelValues("duplicate")))
}

func TestTrackScanAndLookup(t *testing.T) {
	beforeScan := testutil.ToFloat64(scans.WithLabelValues("valid"))
	beforeLookup := testutil.ToFloat64(lookupRequests)

	TrackScan("valid")
	TrackLookup()

	assert.Equal(t, beforeScan+1, testutil.ToFloat64(scans.WithLabelValues("valid")))
	assert.Equal(t, beforeLookup+1, testutil.ToFloat64(lookupRequests))
}

func TestObserveStore(t *testing.T) {
	ObserveStore("get_ticket", time.Now().Add(-10*time.Millisecond))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(storeOperationDuration), 1)
}
