package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/banshee-data/modes1090/internal/config"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/serialmux"
	"github.com/banshee-data/modes1090/internal/sink"
	"github.com/banshee-data/modes1090/internal/sink/filesink"
	"github.com/banshee-data/modes1090/internal/sink/grpcsink"
	"github.com/banshee-data/modes1090/internal/sink/mqttsink"
	"github.com/banshee-data/modes1090/internal/sink/serialsink"
	"github.com/banshee-data/modes1090/internal/sink/sqlitestore"
	"github.com/banshee-data/modes1090/internal/sink/wssink"
)

// serialOpener opens the AVR output port; tests replace it.
var serialOpener serialmux.PortOpener = serialmux.OpenPort

// openSinks opens every enabled sink, mounting their admin routes on mux.
// Background goroutines are tracked by wg and stop when ctx is done. On
// error the sinks opened so far are closed.
func openSinks(ctx context.Context, cfg *config.SinksConfig, mux *http.ServeMux, wg *sync.WaitGroup) (sinks []sink.Sink, err error) {
	if cfg == nil {
		return nil, nil
	}
	defer func() {
		if err != nil {
			sink.CloseAll(sinks...)
			sinks = nil
		}
	}()

	if c := cfg.File; c != nil {
		path := c.GetPath()
		if c.GetCompress() && !strings.HasSuffix(path, ".zst") {
			path += ".zst"
		}
		s, err := filesink.Open(path)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}

	if c := cfg.SQLite; c != nil {
		s, err := sqlitestore.Open(c.GetPath())
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
		if err := s.AttachAdminRoutes(mux); err != nil {
			return sinks, fmt.Errorf("sqlite admin routes: %w", err)
		}
	}

	if c := cfg.GRPC; c != nil {
		s := grpcsink.NewServer(grpcsink.Config{ListenAddr: c.GetListen()})
		if err := s.Start(); err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}

	if c := cfg.MQTT; c != nil {
		s, err := mqttsink.Dial(mqttsink.Config{
			Broker:      c.GetBroker(),
			ClientID:    c.GetClientID(),
			TopicPrefix: c.GetTopicPrefix(),
			QoS:         byte(c.GetQoS()),
			Retain:      c.GetRetain(),
		})
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, s)
	}

	if c := cfg.Serial; c != nil {
		port, err := serialmux.Open(serialOpener, c.GetPort(), serialmux.PortOptions{BaudRate: c.GetBaud()})
		if err != nil {
			return sinks, fmt.Errorf("serial sink: %w", err)
		}
		sinks = append(sinks, serialsink.New(port, c.GetTimestamp()))
		port.AttachAdminRoutes(mux)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := port.Monitor(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("[Serial] monitor stopped: %v", err)
			}
		}()
	}

	if c := cfg.WebSocket; c != nil {
		hub := wssink.NewHub()
		sinks = append(sinks, hub)

		wsMux := http.NewServeMux()
		wsMux.Handle(c.GetPath(), hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, "websocket", c.GetListen(), wsMux)
		}()
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	monitoring.Logf("[Main] sinks: %s", strings.Join(names, ", "))
	return sinks, nil
}
