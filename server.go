// Package imgserve wires together the queue, image store, turnstile and
// trace components into the single-connection image-processing server
// described by this repository.
package imgserve

import (
	"fmt"
	"net"
	"os"

	"github.com/bu-cs350/imgserve/internal/config"
	"github.com/bu-cs350/imgserve/internal/dispatch"
	"github.com/bu-cs350/imgserve/internal/imgstore"
	"github.com/bu-cs350/imgserve/internal/trace"
	"github.com/bu-cs350/imgserve/internal/turnstile"
	log "github.com/sirupsen/logrus"
)

// Server aggregates the long-lived, connection-spanning state: the image
// store and its turnstile outlive any one connection, while the request
// queue and worker pool are rebuilt per connection by internal/dispatch
// (§4, "Component lifetimes").
type Server struct {
	cfg     config.Config
	store   *imgstore.Store
	table   *turnstile.Table
	emitter *trace.Emitter
}

// New builds a Server from a resolved configuration.
func New(cfg config.Config) *Server {
	return &Server{
		cfg:     cfg,
		store:   imgstore.New(),
		table:   turnstile.NewTable(),
		emitter: trace.NewEmitter(os.Stdout),
	}
}

// Listen binds the configured port. Split out from Run so tests (and any
// caller that needs the actual bound address, e.g. when Port is 0) can
// observe ln.Addr() before Serve blocks in Accept.
func (s *Server) Listen() (net.Listener, error) {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts exactly one connection on ln and serves it to completion,
// per spec.md §6: "The server listens on one port, accepts exactly one
// connection, and exits when that connection closes."
func (s *Server) Serve(ln net.Listener) error {
	log.WithField("addr", ln.Addr()).Info("waiting for incoming connection")
	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	log.WithField("remote", conn.RemoteAddr()).Info("client connected")

	dcfg := dispatch.Config{
		QueueSize: s.cfg.QueueSize,
		Workers:   s.cfg.Workers,
		Policy:    s.cfg.Policy,
	}
	err = dispatch.Handle(conn, dcfg, s.store, s.table, s.emitter)
	log.Info("client disconnected")
	return err
}

// Run listens on the configured port and serves exactly one connection.
func (s *Server) Run() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()
	return s.Serve(ln)
}
