// Package server exposes the auction engine over its two surfaces: a framed
// JSON request/response socket (tcp or vsock) for mutating operations, and an
// HTTP API with a websocket event feed for readers.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cdpmarket/auctionengine/engine"
)

const connReadTimeout = 30 * time.Second

// Server accepts one request per connection, dispatches it against the
// engine, and writes one JSON response.
type Server struct {
	engine *engine.Engine
	cfg    Config
}

func New(eng *engine.Engine, cfg Config) *Server {
	return &Server{engine: eng, cfg: cfg}
}

func (s *Server) listen() (net.Listener, error) {
	switch s.cfg.ListenMode {
	case "vsock":
		return vsock.Listen(s.cfg.VsockPort, nil)
	default:
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
}

// Start runs the accept loop until the listener fails fatally. Connections
// beyond MaxWorkers are rejected immediately so the engine never queues
// unbounded work.
func (s *Server) Start() error {
	listener, err := s.listen()
	if err != nil {
		return fmt.Errorf("failed to create %s listener: %w", s.cfg.ListenMode, err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Auction engine listening on %s (%s)", listener.Addr(), s.cfg.ListenMode)

	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.cfg.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(connReadTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
