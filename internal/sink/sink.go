// Package sink fans published records out to external consumers. Each sink
// receives every record once, in publication order, with no acknowledgment.
package sink

import (
	"context"
	"errors"
	"io"

	"github.com/banshee-data/modes1090/internal/modes/l6publish"
	"github.com/banshee-data/modes1090/internal/monitoring"
)

// Sink accepts encoded records.
type Sink interface {
	Name() string
	Send(ctx context.Context, record []byte) error
}

// Func adapts a function to a Sink.
type Func struct {
	Label string
	Fn    func(ctx context.Context, record []byte) error
}

func (f Func) Name() string { return f.Label }

func (f Func) Send(ctx context.Context, record []byte) error { return f.Fn(ctx, record) }

// Dispatch sends every record from records to each sink until records is
// closed. A failing sink is logged and counted; it is never retried and
// never holds back the others. Dispatch keeps draining after ctx is done so
// the pipeline can finish publishing.
func Dispatch(ctx context.Context, records <-chan l6publish.PublishedRecord, counters *monitoring.Counters, sinks ...Sink) {
	if counters == nil {
		counters = monitoring.NewCounters()
	}
	failing := make(map[string]bool, len(sinks))
	for rec := range records {
		for _, s := range sinks {
			err := s.Send(ctx, rec.Bytes)
			if err == nil {
				if failing[s.Name()] {
					monitoring.Logf("[Sink] %s recovered", s.Name())
					failing[s.Name()] = false
				}
				continue
			}
			counters.SinkErrors.Add(1)
			// Log the first failure of a run of errors only.
			if !failing[s.Name()] {
				monitoring.Logf("[Sink] %s: %v", s.Name(), err)
				failing[s.Name()] = true
			}
		}
	}
}

// CloseAll closes every sink that implements io.Closer and joins the
// errors.
func CloseAll(sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
