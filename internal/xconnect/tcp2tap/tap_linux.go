//go:build linux

package tcp2tap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	tunsetiff = 0x400454ca
	iffTap    = 0x0002
	iffNoPI   = 0x1000
)

// ifReq mirrors struct ifreq's layout for the TUNSETIFF ioctl: a 16-byte
// interface name followed by a flags field.
type ifReq struct {
	name  [16]byte
	flags uint16
	_     [22]byte // pad to match the kernel's struct ifreq size
}

// Tap opens /dev/net/tun and binds it to a TAP interface with the given
// name (no TUNSETPERSIST is issued), matching xcon.py's TUNSETIFF dance. It implements
// io.ReadWriter so it can be passed directly to tcp2tap.New.
type Tap struct {
	file *os.File
	Name string
}

// OpenTap creates (or attaches to) the named TAP interface.
func OpenTap(name string) (*Tap, error) {
	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tcp2tap: open /dev/net/tun: %w", err)
	}

	var req ifReq
	copy(req.name[:], name)
	req.flags = iffTap | iffNoPI

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(tunsetiff), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("tcp2tap: TUNSETIFF %s: %w", name, errno)
	}

	return &Tap{file: f, Name: name}, nil
}

func (t *Tap) Read(p []byte) (int, error)  { return t.file.Read(p) }
func (t *Tap) Write(p []byte) (int, error) { return t.file.Write(p) }
func (t *Tap) Close() error                { return t.file.Close() }
