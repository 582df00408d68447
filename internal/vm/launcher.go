package vm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// QEMULauncher launches the emulator as a child process of the supervisor.
// It is grounded on the same shape as a hypervisor launcher: keep the
// exec.Cmd handle on the returned instance so later stdout/stderr polling
// and termination stay scoped to one VM, never leaked across restarts.
type QEMULauncher struct {
	Binary string
}

// NewQEMULauncher returns a launcher that invokes binary (e.g.
// "qemu-system-x86_64") with the args vm.BuildArgs produces.
func NewQEMULauncher(binary string) *QEMULauncher {
	return &QEMULauncher{Binary: binary}
}

func (l *QEMULauncher) Launch(ctx context.Context, args []string) (Instance, error) {
	if l.Binary == "" {
		return nil, fmt.Errorf("vm: qemu binary path required")
	}

	cmd := exec.Command(l.Binary, args...)

	inst := &qemuInstance{cmd: cmd}
	cmd.Stdout = &inst.stdoutBuf
	cmd.Stderr = &syncBuffer{buf: &inst.stderrBuf, mu: &inst.mu}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("vm: start emulator: %w", err)
	}

	inst.done = make(chan error, 1)
	go func() {
		inst.done <- cmd.Wait()
		close(inst.done)
	}()

	return inst, nil
}

type qemuInstance struct {
	cmd *exec.Cmd

	mu        sync.Mutex
	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer

	done chan error
}

// syncBuffer guards a bytes.Buffer shared between the child process
// writer goroutine and PendingErrorOutput's polling reader.
type syncBuffer struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (i *qemuInstance) PID() int {
	if i.cmd.Process == nil {
		return 0
	}
	return i.cmd.Process.Pid
}

// PendingErrorOutput drains whatever the emulator has written to stderr
// since the last call. Any non-empty result is treated by VM.Tick as a
// restart trigger, mirroring check_qemu()'s "errs != ''" test.
func (i *qemuInstance) PendingErrorOutput() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stderrBuf.Len() == 0 {
		return nil
	}
	out := make([]byte, i.stderrBuf.Len())
	copy(out, i.stderrBuf.Bytes())
	i.stderrBuf.Reset()
	return out
}

func (i *qemuInstance) Wait() <-chan error { return i.done }

// Stop requests graceful termination, escalating to SIGKILL after a
// bounded wait, per spec.md section 4.3's "Stop" contract.
func (i *qemuInstance) Stop(ctx context.Context) error {
	if i.cmd.Process == nil {
		return nil
	}

	if err := i.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("vm: signal term: %w", err)
	}

	select {
	case err, ok := <-i.done:
		if ok && err != nil {
			return fmt.Errorf("vm: wait: %w", err)
		}
		return nil
	case <-time.After(10 * time.Second):
		_ = i.cmd.Process.Signal(syscall.SIGKILL)
		if err, ok := <-i.done; ok && err != nil {
			return fmt.Errorf("vm: wait after kill: %w", err)
		}
		return nil
	}
}

var _ Launcher = (*QEMULauncher)(nil)
var _ Instance = (*qemuInstance)(nil)
