package tcp2tap

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTap is an in-memory io.ReadWriter standing in for a real TAP
// device: writes go to `written`, reads are served from `toRead`.
type fakeTap struct {
	mu      sync.Mutex
	written [][]byte
	toRead  chan []byte
}

func newFakeTap() *fakeTap {
	return &fakeTap{toRead: make(chan []byte, 8)}
}

func (f *fakeTap) Write(p []byte) (int, error) {
	f.mu.Lock()
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeTap) Read(p []byte) (int, error) {
	frame, ok := <-f.toRead
	if !ok {
		return 0, io.EOF
	}
	return copy(p, frame), nil
}

func (f *fakeTap) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func TestPumpClientToTapAssemblesSplitLengthHeader(t *testing.T) {
	tap := newFakeTap()
	b := New(discardLogger(), "[::]:0", tap)

	clientSide, serverSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.pumpClientToTap(ctx, serverSide)

	payload := []byte("hello-ethernet-frame")
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	// Split the 4-byte length header across two writes: 1 byte, then 3.
	go func() {
		_, _ = clientSide.Write(header[:1])
		time.Sleep(10 * time.Millisecond)
		_, _ = clientSide.Write(header[1:])
		_, _ = clientSide.Write(payload)
	}()

	deadline := time.After(2 * time.Second)
	for {
		frames := tap.writtenFrames()
		if len(frames) == 1 {
			if !bytes.Equal(frames[0], payload) {
				t.Fatalf("got frame %q, want %q", frames[0], payload)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for assembled frame")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPumpTapToClientDropsFramesWithNoClient(t *testing.T) {
	tap := newFakeTap()
	b := New(discardLogger(), "[::]:0", tap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.pumpTapToClient(ctx)

	tap.toRead <- []byte("unattended-frame")

	// No client attached: nothing should panic or block. Give the pump a
	// moment to process and drop the frame, then confirm no client was
	// ever set.
	time.Sleep(20 * time.Millisecond)
	if b.currentClient() != nil {
		t.Fatal("expected no client attached")
	}
}

func TestPumpTapToClientFramesWithLengthPrefix(t *testing.T) {
	tap := newFakeTap()
	b := New(discardLogger(), "[::]:0", tap)

	clientSide, serverSide := net.Pipe()
	b.setClient(serverSide)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.pumpTapToClient(ctx)

	payload := []byte("frame-from-tap")
	tap.toRead <- payload

	header := make([]byte, 4)
	if _, err := io.ReadFull(clientSide, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	size := binary.BigEndian.Uint32(header)
	if int(size) != len(payload) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}

	got := make([]byte, size)
	if _, err := io.ReadFull(clientSide, got); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
