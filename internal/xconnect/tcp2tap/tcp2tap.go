// Package tcp2tap implements the TCP<->TAP bridge: an IPv6-wildcard TCP
// listener accepting one client at a time, framing Ethernet frames read
// from a TAP device with a 4-byte big-endian length prefix, and writing
// incoming framed payloads back onto the TAP device. Grounded on
// original_source/vr-xcon/xcon.py's Tcp2Tap, reworked from its
// select-loop multiplexer into a read-loop-per-direction pump pair.
package tcp2tap

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// frameState tracks which half of the length-prefixed frame protocol is
// currently being assembled from a TCP stream.
type frameState int

const (
	readingSize frameState = iota
	readingPayload
)

// Bridge listens for a single TCP client and shuttles Ethernet frames
// between it and a TAP device.
type Bridge struct {
	logger *slog.Logger
	tap    io.ReadWriter

	listenAddr string

	mu     sync.Mutex
	client net.Conn
}

// New returns a Bridge that will listen on the given address (e.g.
// "[::]:10001") and read/write Ethernet frames on tap.
func New(logger *slog.Logger, listenAddr string, tap io.ReadWriter) *Bridge {
	return &Bridge{logger: logger, listenAddr: listenAddr, tap: tap}
}

// Run accepts clients in a loop (replacing any existing client, matching
// the source's single-tcp-slot behavior) and pumps frames in both
// directions until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", b.listenAddr)
	if err != nil {
		return fmt.Errorf("tcp2tap: listen on %s: %w", b.listenAddr, err)
	}
	defer ln.Close()

	go b.pumpTapToClient(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				b.logger.Warn("accept failed", "error", err)
				continue
			}
		}
		b.logger.Debug("incoming tcp connection accepted")
		b.setClient(conn)
		go b.pumpClientToTap(ctx, conn)
	}
}

func (b *Bridge) setClient(c net.Conn) {
	b.mu.Lock()
	old := b.client
	b.client = c
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (b *Bridge) currentClient() net.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// pumpClientToTap reads length-prefixed frames from conn and writes the
// payloads to the TAP device. The framer gate uses len(buf) >= 4 (not the
// source's `> 4`, which drops the boundary case where exactly 4 bytes of
// header have arrived) so a length header split across two TCP reads is
// assembled correctly once the 4th byte lands.
func (b *Bridge) pumpClientToTap(ctx context.Context, conn net.Conn) {
	var buf []byte
	state := readingSize
	var remaining uint32

	chunk := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		default:
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if n == 0 {
				b.logger.Debug("client connection closed")
			} else {
				b.logger.Warn("client read error", "error", err)
			}
			return
		}

		for {
			if state == readingSize {
				if len(buf) < 4 {
					break
				}
				remaining = binary.BigEndian.Uint32(buf[:4])
				buf = buf[4:]
				state = readingPayload
			}
			if state == readingPayload {
				if uint32(len(buf)) < remaining {
					break
				}
				payload := buf[:remaining]
				buf = buf[remaining:]
				state = readingSize
				if _, werr := b.tap.Write(payload); werr != nil {
					b.logger.Warn("tap write failed", "error", werr)
				}
			}
		}
	}
}

// pumpTapToClient reads full Ethernet frames off the TAP device and
// relays them, length-prefixed, to whichever client is currently
// connected. Frames are dropped (and logged) when no client is attached.
func (b *Bridge) pumpTapToClient(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := b.tap.Read(buf)
		if err != nil {
			b.logger.Warn("tap read failed", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		client := b.currentClient()
		if client == nil {
			b.logger.Debug("no client attached, dropping frame", "bytes", n)
			continue
		}

		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, uint32(n))
		if _, err := client.Write(header); err != nil {
			b.logger.Warn("client write failed", "error", err)
			continue
		}
		if _, err := client.Write(buf[:n]); err != nil {
			b.logger.Warn("client write failed", "error", err)
		}
	}
}
