package monitoring

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRejectionRate(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	assert.Zero(t, c.RejectionRate())

	c.AddRejected(RejectChecksum)
	afterReject := c.RejectionRate()
	assert.InDelta(t, rejectionAlpha, afterReject, 1e-12)

	c.AddAccepted(false)
	assert.Less(t, c.RejectionRate(), afterReject)

	c.AddAccepted(true)
	s := c.Snapshot()
	assert.Equal(t, uint64(1), s.FramesRejected)
	assert.Equal(t, uint64(1), s.FramesValid)
	assert.Equal(t, uint64(1), s.FramesCorrected)
	assert.Equal(t, map[string]uint64{RejectChecksum: 1}, s.RejectReasons)
}

func TestCountersConcurrent(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.AddRejected(RejectUnverifiable)
				c.AddAccepted(false)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), c.FramesRejected.Load())
	assert.Equal(t, uint64(8000), c.RejectReasons()[RejectUnverifiable])
	rate := c.RejectionRate()
	assert.True(t, rate > 0 && rate < 1, "rate %f out of range", rate)
}

func TestCollectorExportsCounters(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	c.BurstsDetected.Add(3)
	c.AddRejected(RejectChecksum)
	c.AddRejected(RejectUnverifiable)
	c.ChannelDrops.Add(2)

	col := NewCollector(c, "test")
	// 11 fixed series + 2 reject reasons
	assert.Equal(t, 13, promtestutil.CollectAndCount(col))

	expected := `
# HELP modes_channel_drops_total Records evicted from a full outbound channel
# TYPE modes_channel_drops_total counter
modes_channel_drops_total{receiver="test"} 2
`
	require.NoError(t, promtestutil.CollectAndCompare(col, strings.NewReader(expected), "modes_channel_drops_total"))
}

func TestCollectorSnapshotHandler(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	c.DuplicatesSuppressed.Add(4)
	col := NewCollector(c, "test")

	rec := httptest.NewRecorder()
	col.serveSnapshot(rec, httptest.NewRequest("GET", "/debug/modes", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	var s Snapshot
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, uint64(4), s.DuplicatesSuppressed)

	h, err := col.Handler()
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `modes_duplicates_suppressed_total{receiver="test"} 4`)
}
