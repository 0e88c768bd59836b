package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/modes1090/internal/api"
	"github.com/banshee-data/modes1090/internal/config"
	"github.com/banshee-data/modes1090/internal/modes/l1samples"
	"github.com/banshee-data/modes1090/internal/modes/pipeline"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/sink"
	"github.com/banshee-data/modes1090/internal/sink/sqlitestore"
	"github.com/banshee-data/modes1090/internal/timeutil"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// supervisor runs the receiver and restarts it whenever the config file
// changes. A restart reopens every device and sink.
type supervisor struct {
	load    func() (*config.ReceiverConfig, error)
	watcher *config.ConfigWatcher

	// run serves one configuration until ctx is done; runReceiver when nil.
	run func(ctx context.Context, cfg *config.ReceiverConfig) error
}

// Run serves cfg until ctx is done or the receiver fails.
func (s *supervisor) Run(ctx context.Context, cfg *config.ReceiverConfig) error {
	run := s.run
	if run == nil {
		run = runReceiver
	}

	reloads := make(chan *config.ReceiverConfig, 1)
	if s.watcher != nil {
		go func() {
			err := s.watcher.Run(ctx, func(*config.ReceiverConfig) {
				next, err := s.load()
				if err != nil {
					monitoring.Logf("[Main] ignoring config change: %v", err)
					return
				}
				// Keep only the newest pending config.
				select {
				case <-reloads:
				default:
				}
				reloads <- next
			})
			if err != nil {
				monitoring.Logf("[Main] config watcher stopped: %v", err)
			}
		}()
	}

	for {
		genCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(cfg *config.ReceiverConfig) { done <- run(genCtx, cfg) }(cfg)

		select {
		case next := <-reloads:
			monitoring.Logf("[Main] configuration changed, restarting")
			cancel()
			if err := <-done; err != nil {
				monitoring.Logf("[Main] previous run ended with: %v", err)
			}
			cfg = next
		case err := <-done:
			cancel()
			return err
		}
	}
}

// runReceiver serves one configuration: admin routes, sinks and the
// decode pipeline with reattach.
func runReceiver(ctx context.Context, cfg *config.ReceiverConfig) error {
	if err := monitoring.SetLevel(cfg.GetLogLevel()); err != nil {
		return err
	}

	counters := monitoring.NewCounters()
	mux := http.NewServeMux()
	if err := monitoring.NewCollector(counters, "modes1090").AttachAdminRoutes(mux); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks, err := openSinks(ctx, cfg.Sinks, mux, &wg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.CloseAll(sinks...); err != nil {
			monitoring.Logf("[Main] closing sinks: %v", err)
		}
	}()

	var store api.RunStore
	for _, s := range sinks {
		if st, ok := s.(*sqlitestore.Store); ok {
			store = st
		}
	}
	status := api.NewServer(counters, cfg, store)
	status.AttachRoutes(mux)

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveHTTP(ctx, "admin", cfg.GetAdminListen(), api.LoggingMiddleware(mux))
	}()

	minBackoff, maxBackoff := cfg.GetReattachBackoff()
	a := &attacher{
		build: func() (pipeline.Config, error) {
			return cfg.PipelineConfig(counters, timeutil.RealClock{})
		},
		counters:    counters,
		sinks:       sinks,
		onRun:       status.SetRunID,
		MinBackoff:  minBackoff,
		MaxBackoff:  maxBackoff,
		MaxAttempts: cfg.GetReattachMaxAttempts(),
		Clock:       timeutil.RealClock{},
	}
	return a.Run(ctx)
}

// serveHTTP serves h on addr until ctx is done.
func serveHTTP(ctx context.Context, name, addr string, h http.Handler) {
	server := &http.Server{Addr: addr, Handler: h}

	go func() {
		monitoring.Logf("[HTTP] %s server listening on %s", name, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("[HTTP] %s server failed: %v", name, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[HTTP] %s server shutdown error: %v", name, err)
		if err := server.Close(); err != nil {
			monitoring.Logf("[HTTP] %s server force close error: %v", name, err)
		}
	}
}

// attacher runs pipelines back to back, reattaching with exponential
// backoff after a device disconnects. Each attach is a new run with a
// fresh run id and detector state.
type attacher struct {
	build    func() (pipeline.Config, error)
	counters *monitoring.Counters
	sinks    []sink.Sink
	onRun    func(runID string)

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxAttempts is the number of consecutive reattach attempts that read
	// nothing before giving up. Zero retries forever.
	MaxAttempts int
	Clock       timeutil.Clock
}

// Run returns nil when ctx is done or every source ended, and the error
// of the first run that fails for a reason other than a disconnect.
func (a *attacher) Run(ctx context.Context) error {
	minBackoff, maxBackoff := a.MinBackoff, a.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	if maxBackoff < minBackoff {
		maxBackoff = max(defaultMaxBackoff, minBackoff)
	}
	clock := a.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	backoff := minBackoff
	reattaching := false
	attempts := 0
	for {
		pcfg, err := a.build()
		if err != nil {
			return err
		}
		pcfg.Counters = a.counters
		p, err := pipeline.New(pcfg)
		if err != nil {
			return err
		}
		monitoring.Logf("[Main] run %s started with %d device(s)", p.RunID(), len(pcfg.Devices))
		if a.onRun != nil {
			a.onRun(p.RunID())
		}

		blocksBefore := a.counters.BlocksRead.Load()
		dispatched := make(chan struct{})
		go func() {
			defer close(dispatched)
			sink.Dispatch(ctx, p.Records(), a.counters, a.sinks...)
		}()
		err = p.Run(ctx)
		<-dispatched

		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			monitoring.Logf("[Main] run %s: all sources ended", p.RunID())
			return nil
		case errors.Is(err, l1samples.ErrDeviceDisconnected):
		case reattaching && errors.Is(err, l1samples.ErrDevice):
			// The device may still be coming back.
		default:
			return err
		}

		if a.counters.BlocksRead.Load() > blocksBefore {
			backoff = minBackoff
			attempts = 0
		}
		if a.MaxAttempts > 0 && attempts >= a.MaxAttempts {
			return fmt.Errorf("giving up after %d reattach attempts: %w", attempts, err)
		}
		attempts++
		monitoring.Logf("[Main] run %s: %v; reattaching in %s", p.RunID(), err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-clock.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
		reattaching = true
	}
}
