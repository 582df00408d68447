//go:build !linux

package tcp2tap

import "fmt"

// Tap is a stub on non-Linux platforms: TAP devices are a Linux-only
// concept, and this binary is only ever deployed inside Linux containers.
type Tap struct {
	Name string
}

// OpenTap always fails on non-Linux platforms.
func OpenTap(name string) (*Tap, error) {
	return nil, fmt.Errorf("tcp2tap: TAP devices are not supported on this platform")
}

func (t *Tap) Read(p []byte) (int, error)  { return 0, fmt.Errorf("tcp2tap: unsupported platform") }
func (t *Tap) Write(p []byte) (int, error) { return 0, fmt.Errorf("tcp2tap: unsupported platform") }
func (t *Tap) Close() error                { return nil }
