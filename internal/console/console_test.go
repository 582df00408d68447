package console

import (
	"context"
	"net"
	"testing"
	"time"
)

func newTestConsole(t *testing.T) (*Console, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		serverCh <- conn
	}()

	c, err := Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-serverCh
	return c, server
}

func TestExpectMatchesAndReturnsPreceding(t *testing.T) {
	c, server := newTestConsole(t)
	defer c.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("booting...\r\nLogin: "))
	}()

	idx, matched, preceding, err := c.Expect(context.Background(), [][]byte{[]byte("Login:"), []byte("#")}, time.Second)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0", idx)
	}
	if string(matched) != "Login:" {
		t.Fatalf("matched = %q, want Login:", matched)
	}
	if string(preceding) != "booting...\r\n" {
		t.Fatalf("preceding = %q, want %q", preceding, "booting...\r\n")
	}
}

func TestExpectTimeoutReturnsAccumulatedBytes(t *testing.T) {
	c, server := newTestConsole(t)
	defer c.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("still booting"))
	}()
	time.Sleep(20 * time.Millisecond)

	idx, matched, preceding, err := c.Expect(context.Background(), [][]byte{[]byte("Login:")}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if idx != -1 || matched != nil {
		t.Fatalf("expected no match, got idx=%d matched=%q", idx, matched)
	}
	if string(preceding) != "still booting" {
		t.Fatalf("preceding = %q, want %q", preceding, "still booting")
	}
}

func TestWriteLineAppendsCR(t *testing.T) {
	c, server := newTestConsole(t)
	defer c.Close()
	defer server.Close()

	if err := c.WriteLine("admin"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}

	buf := make([]byte, 16)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "admin\r" {
		t.Fatalf("got %q, want %q", buf[:n], "admin\r")
	}
}

func TestReadUntilBlocksUntilToken(t *testing.T) {
	c, server := newTestConsole(t)
	defer c.Close()
	defer server.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("foo"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("Password:bar"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := c.ReadUntil(ctx, []byte("Password:"))
	if err != nil {
		t.Fatalf("ReadUntil: %v", err)
	}
	if string(out) != "fooPassword:" {
		t.Fatalf("got %q, want %q", out, "fooPassword:")
	}
}
