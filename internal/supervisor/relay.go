package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// relay forwards a host-facing TCP listener to a fixed upstream address.
// Grounded on the teacher's internal/drift/vsockproxy accept-loop +
// io.Copy pump-pair pattern, adapted from vsock dialing to a plain TCP
// upstream: the supervisor uses this to re-expose the emulator's SSH and
// NETCONF hostfwd ports (127.0.0.1:2022/2830) on the container's 22/830,
// since the emulator's own user-mode NAT hostfwd only reaches 127.0.0.1.
type relay struct {
	logger   *slog.Logger
	listenAt string
	upstream string

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func newRelay(logger *slog.Logger, listenAt, upstream string) *relay {
	return &relay{
		logger:   logger.With("listen", listenAt, "upstream", upstream),
		listenAt: listenAt,
		upstream: upstream,
		done:     make(chan struct{}),
	}
}

// Start begins listening and accepting connections in the background.
func (r *relay) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.listenAt)
	if err != nil {
		return fmt.Errorf("supervisor: relay listen %s: %w", r.listenAt, err)
	}
	r.listener = ln

	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		defer close(r.done)
		r.logger.Info("relay started")
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-childCtx.Done():
					return
				default:
					r.logger.Warn("accept error", "error", err)
					return
				}
			}
			go r.handle(childCtx, conn)
		}
	}()
	return nil
}

func (r *relay) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var d net.Dialer
	upstream, err := d.DialContext(ctx, "tcp", r.upstream)
	if err != nil {
		r.logger.Warn("upstream dial failed", "error", err)
		return
	}
	defer upstream.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	copyStream := func(dst io.Writer, src io.Reader) {
		defer wg.Done()
		if _, err := io.Copy(dst, src); err != nil {
			r.logger.Debug("relay stream ended", "error", err)
		}
	}
	go copyStream(upstream, conn)
	go copyStream(conn, upstream)
	wg.Wait()
}

// Stop cancels the relay and waits for its accept loop to exit.
func (r *relay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	_ = r.listener.Close()
	<-r.done
}
