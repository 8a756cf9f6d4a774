// Package tcpserver implements the TCP engine (spec component C5): a
// listener that hands each accepted connection to an independent handler
// goroutine, so one stalled or malicious peer cannot block another.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"calcmesh/pkg/task"
)

// Config holds the TCP engine's tunable parameters.
type Config struct {
	OpTimeout      time.Duration
	SupportsText   bool
	SupportsBinary bool
}

// DefaultConfig returns spec.md §4.3's default timing parameters, offering
// both dialects.
func DefaultConfig() Config {
	return Config{
		OpTimeout:      5 * time.Second,
		SupportsText:   true,
		SupportsBinary: true,
	}
}

// Engine accepts TCP connections and dispatches each to its own handler.
type Engine struct {
	cfg Config
	ln  net.Listener
	gen *task.Generator
	log *zap.Logger
}

// NewEngine listens on address and returns an Engine ready to Serve.
func NewEngine(address string, cfg Config, gen *task.Generator, log *zap.Logger) (*Engine, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcpserver: listen on %s: %w", address, err)
	}
	fmt.Printf("tcp engine listening on %s\n", ln.Addr())
	return &Engine{cfg: cfg, ln: ln, gen: gen, log: log}, nil
}

// Close stops accepting new connections.
func (e *Engine) Close() error { return e.ln.Close() }

// Serve accepts connections serially and hands each to a per-connection
// goroutine, until stop is closed or a non-transient accept error occurs.
// This is the Go-idiomatic equivalent of a process-per-connection model:
// the runtime scheduler, not a literal fork, isolates one handler from
// another, and a write to a peer that reset the connection surfaces as an
// error return rather than a process-terminating SIGPIPE, so there is
// nothing to explicitly ignore.
func (e *Engine) Serve(stop <-chan struct{}) error {
	go func() {
		<-stop
		_ = e.ln.Close()
	}()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("tcpserver: accept: %w", err)
		}
		h := &handler{conn: conn, cfg: e.cfg, gen: e.gen, log: e.log}
		go h.run()
	}
}
