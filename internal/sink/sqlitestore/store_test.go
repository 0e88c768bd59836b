package sqlitestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/testutil"
)

var t0 = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "modes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(run string, df uint8, addr uint32, integrity l4frames.Integrity, at time.Duration, level float32) []byte {
	class := l4frames.ClassLong
	payload := testutil.MustHex("8D406B902015A678D4D220AA4BDA")
	if df == 11 {
		class = l4frames.ClassShort
		payload = testutil.MustHex("5D4CA2519034D0")
	}
	return l6publish.Encode(l6publish.Record{
		WallTime:       t0.Add(at),
		Monotonic:      at,
		SourceID:       "rx1",
		Class:          class,
		Integrity:      integrity,
		Payload:        payload,
		DownlinkFormat: df,
		Address:        addr,
		SignalLevel:    level,
		RunID:          run,
	})
}

func TestOpenMigrates(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, s.MigrateUp())
}

func TestSendAndQuery(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	recs := [][]byte{
		record("run-a", 17, 0x406B90, l4frames.Valid, time.Millisecond, 0.5),
		record("run-a", 17, 0x406B90, l4frames.Corrected(40), 2*time.Millisecond, 0.25),
		record("run-a", 11, 0x4CA251, l4frames.Valid, 3*time.Millisecond, 0.75),
		record("run-b", 11, 0x4CA251, l4frames.Valid, time.Hour, 0.1),
	}
	for _, r := range recs {
		require.NoError(t, s.Send(ctx, r))
	}
	assert.Error(t, s.Send(ctx, []byte{0xFF, 0xFF}), "malformed records are rejected")

	counts, err := s.FormatCounts(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, []FormatCount{
		{DownlinkFormat: 11, Valid: 1},
		{DownlinkFormat: 17, Valid: 1, Corrected: 1},
	}, counts)

	all, err := s.FormatCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all[0].Valid)

	levels, err := s.SignalLevels(ctx, "run-a")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.75}, levels, 1e-6)

	raw, err := s.Records(ctx, "run-a", 2)
	require.NoError(t, err)
	assert.Equal(t, recs[:2], raw)

	var bit int
	require.NoError(t, s.DB().QueryRow(`SELECT corrected_bit FROM records WHERE integrity = 2`).Scan(&bit))
	assert.Equal(t, 40, bit)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
	a := runs[1]
	assert.Equal(t, RunSummary{
		RunID:     "run-a",
		Records:   3,
		Corrected: 1,
		Aircraft:  2,
		First:     t0.Add(time.Millisecond),
		Last:      t0.Add(3 * time.Millisecond),
	}, a)
}

func TestSendAfterCancel(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Send(ctx, record("run-a", 17, 1, l4frames.Valid, 0, 0.5)))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tailsql")
}
