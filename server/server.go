// Package server implements the line-oriented query server: dual TCP (or
// Unix-domain) listeners for queries and online reindexing, a
// per-connection session, and a password/peer-IP gate.
//
// A classic implementation of this protocol forks one child process per
// query connection to give each reader an independent file-descriptor seek
// position. This reimplementation instead bounds concurrently served query
// connections with golang.org/x/sync/semaphore and shares one in-process
// archer.Index across every connection — so an admin write is visible to
// the next query without any reopen dance, but it also means the sharing
// needs its own guard: the admin port is the only writer, and it must not
// run concurrently with in-progress readers in the same process, which
// here becomes a plain sync.RWMutex (readers hold RLock per command, the
// admin writer holds Lock for the duration of one index/nindex) rather
// than process-boundary isolation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/go-mizu/archer"
)

// Server owns the query and admin listeners for one archer.Index.
type Server struct {
	idx *archer.Index
	cfg Config
	log zerolog.Logger
	sem *semaphore.Weighted
	mu  sync.RWMutex
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the structured logger used for connection-lifecycle
// events. The zero value uses idx.Logger().
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a Server over idx configured by cfg.
func New(idx *archer.Index, cfg Config, opts ...Option) *Server {
	s := &Server{idx: idx, cfg: cfg, log: idx.Logger()}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConnections)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe starts the query listener and, if cfg.AdminAddr is set,
// the admin listener, and serves both until ctx is canceled. It returns
// once every listener has stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	queryLn, err := listen(s.cfg.QueryAddr)
	if err != nil {
		return fmt.Errorf("server: listening on query socket %s: %w", s.cfg.QueryAddr, err)
	}
	defer queryLn.Close()

	var adminLn net.Listener
	if s.cfg.AdminAddr != "" {
		adminLn, err = listen(s.cfg.AdminAddr)
		if err != nil {
			return fmt.Errorf("server: listening on admin socket %s: %w", s.cfg.AdminAddr, err)
		}
		defer adminLn.Close()
	}

	s.log.Info().Str("query_addr", s.cfg.QueryAddr).Str("admin_addr", s.cfg.AdminAddr).Msg("server starting")

	errCh := make(chan error, 2)
	go func() { errCh <- s.acceptLoop(ctx, queryLn, s.handleQuery) }()
	if adminLn != nil {
		go func() { errCh <- s.acceptLoop(ctx, adminLn, s.handleAdmin) }()
	} else {
		errCh <- nil
	}

	<-ctx.Done()
	queryLn.Close()
	if adminLn != nil {
		adminLn.Close()
	}

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.log.Info().Msg("server stopped")
	return firstErr
}

// acceptLoop runs ln's accept loop, dispatching each connection to handle
// in its own goroutine: one accept loop per listener, each handed off to a
// fresh goroutine per connection, is the idiomatic Go equivalent of a
// select-based demultiplexer.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, handle func(context.Context, net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if err := checkPeer(s.cfg, conn.RemoteAddr()); err != nil {
			conn.Close()
			continue
		}
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				conn.Close()
				return nil
			}
			go func() {
				defer s.sem.Release(1)
				handle(ctx, conn)
			}()
		} else {
			go handle(ctx, conn)
		}
	}
}

func (s *Server) handleQuery(ctx context.Context, conn net.Conn) {
	if err := s.gatePassword(conn); err != nil {
		conn.Close()
		return
	}
	serveQueryConn(ctx, s.idx, conn, s.log, &s.mu)
}

func (s *Server) handleAdmin(ctx context.Context, conn net.Conn) {
	if err := s.gatePassword(conn); err != nil {
		conn.Close()
		return
	}
	serveAdminConn(ctx, s.idx, conn, s.log, &s.mu)
}

// gatePassword sends a prompt, reads one line, checks it, and closes
// silently on mismatch.
func (s *Server) gatePassword(conn net.Conn) error {
	if s.cfg.PasswordHash == "" {
		return nil
	}
	if _, err := conn.Write([]byte("password:\n")); err != nil {
		return err
	}
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	return checkPassword(s.cfg, string(buf[:n]))
}

// listen dials the right network for addr: a Unix-domain socket for any
// address containing a path separator, TCP otherwise.
func listen(addr string) (net.Listener, error) {
	if strings.ContainsRune(addr, os.PathSeparator) {
		return net.Listen("unix", addr)
	}
	return net.Listen("tcp", addr)
}
