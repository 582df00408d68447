// Package vm supervises a single emulated appliance: building its emulator
// command line, owning its child process, and driving the per-variant
// bootstrap state machine over its serial console.
package vm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vrnetlab/vrctl/internal/console"
)

// Variant supplies the appliance-specific pieces of the command line and
// bootstrap dialogue. Implementations live in internal/appliance; VM never
// imports that package, avoiding a cycle.
type Variant interface {
	// BuildMgmtNICs returns the -device/-netdev argument pairs for the
	// management interface(s) of this appliance.
	BuildMgmtNICs(v *VM) []string
	// BuildTrafficNICs returns the -device/-netdev argument pairs for the
	// traffic-carrying NICs.
	BuildTrafficNICs(v *VM) []string
	// BootstrapThreshold is the number of idle Expect polls tolerated
	// before the watchdog resets the VM to Unstarted.
	BootstrapThreshold() int
	// BootstrapSpin runs one iteration of the console-driven bootstrap
	// dialogue. It returns done=true once the appliance has fully
	// completed bootstrap (the console has been closed).
	BootstrapSpin(ctx context.Context, v *VM) (done bool, err error)
}

// Launcher starts and owns the emulator child process.
type Launcher interface {
	Launch(ctx context.Context, args []string) (Instance, error)
}

// Instance is a running emulator child process.
type Instance interface {
	PID() int
	// PendingErrorOutput drains and returns any bytes the child has
	// written to its error stream since the last call, without blocking.
	PendingErrorOutput() []byte
	Stop(ctx context.Context) error
	Wait() <-chan error
}

// VM is one emulated appliance.
type VM struct {
	Identity
	Name    string
	Variant Variant
	Logger  *slog.Logger

	launcher Launcher
	instance Instance
	console  *console.Console

	state     State
	spins     int
	startTime time.Time
}

// New constructs a VM. launcher is typically the real qemu launcher from
// this package's launcher.go; tests inject a fake.
func New(name string, id Identity, variant Variant, launcher Launcher, logger *slog.Logger) *VM {
	return &VM{
		Identity: id,
		Name:     name,
		Variant:  variant,
		Logger:   logger.With("vm", name),
		launcher: launcher,
		state:    Unstarted,
	}
}

// State returns the current lifecycle state.
func (v *VM) State() State { return v.state }

// Running reports whether the VM has completed bootstrap and is sticky-running.
func (v *VM) Running() bool { return v.state == Running }

// BuildArgs produces the emulator argv for this VM, per spec.md section 4.3.
func (v *VM) BuildArgs() []string {
	args := []string{
		"-display", "none",
		"-m", fmt.Sprintf("%d", v.RAMMB),
		"-serial", fmt.Sprintf("telnet:0.0.0.0:%d,server,nowait", v.SerialPort()),
		"-drive", fmt.Sprintf("if=ide,file=%s", v.DiskImage),
	}
	if kvmAvailable() {
		args = append([]string{"-enable-kvm"}, args...)
	}

	if v.UUID != "" {
		args = append(args, "-uuid", v.UUID)
	}
	if v.FakeRTCBase != "" {
		args = append(args, "-rtc", "base="+v.FakeRTCBase)
	}
	for _, s := range v.SMBIOS {
		args = append(args, "-smbios", s)
	}

	args = append(args, v.Variant.BuildMgmtNICs(v)...)
	args = append(args, v.Variant.BuildTrafficNICs(v)...)

	return args
}

func kvmAvailable() bool {
	_, err := os.Stat("/dev/kvm")
	return err == nil
}

// Start builds the command line, launches the emulator, and opens the
// serial console. Callers must hold any VM-level synchronization.
func (v *VM) Start(ctx context.Context) error {
	v.Logger.Info("starting vm")
	v.startTime = time.Now()

	args := v.BuildArgs()
	v.Logger.Debug("emulator args", "args", args)

	inst, err := v.launcher.Launch(ctx, args)
	if err != nil {
		return fmt.Errorf("vm %s: launch: %w", v.Name, err)
	}
	v.instance = inst

	con, err := console.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", v.SerialPort()))
	if err != nil {
		_ = inst.Stop(ctx)
		return fmt.Errorf("vm %s: dial console: %w", v.Name, err)
	}
	v.console = con

	v.state = Booting
	v.spins = 0
	return nil
}

// Tick runs one supervision pass: start if unstarted, probe for emulator
// errors, and advance the bootstrap state machine. This is the Go
// equivalent of the source's VM.work().
func (v *VM) Tick(ctx context.Context) error {
	if v.instance == nil {
		return v.Start(ctx)
	}

	if errOut := v.instance.PendingErrorOutput(); len(errOut) > 0 {
		v.Logger.Warn("emulator produced error output, restarting", "output", string(errOut))
		return v.restart(ctx)
	}

	if v.state == Running {
		return nil
	}

	done, err := v.Variant.BootstrapSpin(ctx, v)
	if err != nil {
		return fmt.Errorf("vm %s: bootstrap spin: %w", v.Name, err)
	}
	if done {
		startup := time.Since(v.startTime)
		v.Logger.Info("bootstrap complete", "duration", startup)
		v.state = Running
		return nil
	}

	v.spins++
	if v.spins > v.Variant.BootstrapThreshold() {
		v.Logger.Warn("bootstrap watchdog expired, resetting vm", "spins", v.spins)
		return v.resetToUnstarted(ctx)
	}
	return nil
}

// NoteOutput resets the idle spin counter; called by variants whenever the
// console yields bytes, matched or not, so slow-but-progressing boots are
// never killed by the watchdog.
func (v *VM) NoteOutput() {
	v.spins = 0
}

// resetToUnstarted tears down the current emulator child and console and
// drops the VM back to Unstarted; the next Tick call starts it again. This
// matches the source's "Booting -> Unstarted" watchdog transition exactly
// (stop+start is not done eagerly inside the watchdog branch itself).
func (v *VM) resetToUnstarted(ctx context.Context) error {
	if v.console != nil {
		_ = v.console.Close()
		v.console = nil
	}
	if v.instance != nil {
		if err := v.instance.Stop(ctx); err != nil {
			v.Logger.Warn("stop during watchdog reset", "error", err)
		}
		v.instance = nil
	}
	v.state = Unstarted
	v.spins = 0
	return nil
}

// restart stops and immediately relaunches the VM; used for emulator
// error-output triggers, where the source's check_qemu() calls stop()
// then start() directly rather than deferring to the next tick.
func (v *VM) restart(ctx context.Context) error {
	if err := v.Stop(ctx); err != nil {
		v.Logger.Warn("stop during restart", "error", err)
	}
	v.state = Unstarted
	v.spins = 0
	v.instance = nil
	v.console = nil
	return v.Start(ctx)
}

// Stop requests graceful termination, escalating to SIGKILL if the child
// does not exit within the launcher's bounded wait.
func (v *VM) Stop(ctx context.Context) error {
	v.state = Stopped
	if v.console != nil {
		_ = v.console.Close()
		v.console = nil
	}
	if v.instance == nil {
		return nil
	}
	err := v.instance.Stop(ctx)
	v.instance = nil
	return err
}

// Console exposes the serial console for variant bootstrap logic.
func (v *VM) Console() *console.Console { return v.console }
