package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

type closingSink struct {
	Func
	closed bool
	err    error
}

func (c *closingSink) Close() error {
	c.closed = true
	return c.err
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got [][]byte
	good := Func{Label: "good", Fn: func(_ context.Context, rec []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, rec)
		return nil
	}}
	calls := 0
	flaky := Func{Label: "flaky", Fn: func(context.Context, []byte) error {
		calls++
		if calls%2 == 1 {
			return errors.New("broker unavailable")
		}
		return nil
	}}

	records := make(chan l6publish.PublishedRecord, 4)
	for i := byte(0); i < 4; i++ {
		records <- l6publish.PublishedRecord{Bytes: []byte{i}}
	}
	close(records)

	counters := monitoring.NewCounters()
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // a cancelled context still drains
	Dispatch(ctx, records, counters, good, flaky)

	assert.Equal(t, [][]byte{{0}, {1}, {2}, {3}}, got)
	assert.Equal(t, 4, calls)
	assert.Equal(t, uint64(2), counters.SinkErrors.Load())
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	a := &closingSink{Func: Func{Label: "a"}}
	b := &closingSink{Func: Func{Label: "b"}, err: errors.New("flush failed")}
	plain := Func{Label: "plain"}

	err := CloseAll(a, plain, b)
	assert.ErrorContains(t, err, "flush failed")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
