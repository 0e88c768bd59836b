// Package grpcsink serves published records to gRPC subscribers. Records
// are broadcast to every connected client; a slow client misses records
// instead of stalling the others.
package grpcsink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/modes1090/internal/monitoring"
)

var ErrNotRunning = errors.New("grpcsink: server not running")

// Config holds configuration for the gRPC sink.
type Config struct {
	ListenAddr   string // Address to listen on (default: localhost:30005)
	QueueSize    int    // Records buffered before the broadcast loop (default: 1024)
	ClientBuffer int    // Records buffered per client (default: 256)
	MaxClients   int    // Concurrent subscribers, 0 for no limit
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:30005",
		QueueSize:    1024,
		ClientBuffer: 256,
	}
}

// Server is a Sink that streams records to RecordStream subscribers.
type Server struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	recordCh  chan []byte
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	sent        atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

type clientStream struct {
	id       string
	recordCh chan []byte
}

// NewServer creates a Server. Zero config fields take the defaults.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Server{
		config:   cfg,
		recordCh: make(chan []byte, cfg.QueueSize),
		clients:  make(map[string]*clientStream),
		stopCh:   make(chan struct{}),
	}
}

func (s *Server) Name() string { return "grpc" }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpcsink: failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("grpcsink: already running")
	}
	s.listener = lis
	s.server = grpc.NewServer()
	RegisterRecordStreamServer(s.server, s)

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		monitoring.Logf("[gRPC] RecordStream listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			monitoring.Logf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Send queues record for broadcast. A full queue drops the record.
func (s *Server) Send(_ context.Context, record []byte) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	select {
	case s.recordCh <- record:
		return nil
	default:
		s.dropped.Add(1)
		return fmt.Errorf("grpcsink: queue full, record dropped")
	}
}

// broadcastLoop distributes records to all connected clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case rec := <-s.recordCh:
			s.clientsMu.RLock()
			for _, c := range s.clients {
				select {
				case c.recordCh <- rec:
				default:
					// Slow client, drop the record for it only.
					s.dropped.Add(1)
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

// Subscribe implements RecordStreamServer.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client, err := s.addClient()
	if err != nil {
		return err
	}
	defer s.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case rec := <-client.recordCh:
			if err := stream.SendMsg(wrapperspb.Bytes(rec)); err != nil {
				monitoring.Logf("[gRPC] %s: send error: %v", client.id, err)
				return err
			}
			s.sent.Add(1)
		}
	}
}

func (s *Server) addClient() (*clientStream, error) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.config.MaxClients > 0 && len(s.clients) >= s.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "subscriber limit %d reached", s.config.MaxClients)
	}
	c := &clientStream{
		id:       "grpc-" + uuid.NewString()[:8],
		recordCh: make(chan []byte, s.config.ClientBuffer),
	}
	s.clients[c.id] = c
	n := s.clientCount.Add(1)
	monitoring.Logf("[gRPC] client connected: %s (total: %d)", c.id, n)
	return c, nil
}

func (s *Server) removeClient(id string) {
	s.clientsMu.Lock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	s.clientsMu.Unlock()
	if ok {
		n := s.clientCount.Add(-1)
		monitoring.Logf("[gRPC] client disconnected: %s (remaining: %d)", id, n)
	}
}

// Stats reports delivery counts.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Clients int32
	Running bool
}

// Stats returns current server statistics.
func (s *Server) Stats() Stats {
	return Stats{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
		Clients: s.clientCount.Load(),
		Running: s.running.Load(),
	}
}

// Close ends every subscription and stops the server.
func (s *Server) Close() error {
	s.stopped.Do(func() {
		if !s.running.Swap(false) {
			return
		}
		close(s.stopCh)
		s.server.GracefulStop()
		s.wg.Wait()
		monitoring.Logf("[gRPC] server stopped")
	})
	return nil
}
