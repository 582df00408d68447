package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vrnetlab/vrctl/internal/config"
	"github.com/vrnetlab/vrctl/internal/vm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopInstance struct{}

func (noopInstance) PID() int                    { return 1 }
func (noopInstance) PendingErrorOutput() []byte   { return nil }
func (noopInstance) Stop(ctx context.Context) error { return nil }
func (noopInstance) Wait() <-chan error           { ch := make(chan error); return ch }

type noopLauncher struct{}

func (noopLauncher) Launch(ctx context.Context, args []string) (vm.Instance, error) {
	return noopInstance{}, nil
}

func testConfig(t *testing.T, bridgeName string) config.SupervisorConfig {
	t.Helper()
	dir := t.TempDir()
	return config.SupervisorConfig{
		HypervisorBinary: "qemu-system-x86_64",
		RuntimeDir:       dir,
		TFTPRoot:         filepath.Join(dir, "tftpboot"),
		BridgeName:       bridgeName,
		HealthFilePath:   filepath.Join(dir, "health"),
	}
}

func TestDiskSweepMovesImageToCanonicalName(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "sros-24.10.r1.qcow2")
	if err := os.WriteFile(src, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	canonical := filepath.Join(root, "sros.qcow2")
	licenseDir := filepath.Join(root, "tftpboot")

	image, license, err := diskSweep(root, canonical, licenseDir)
	if err != nil {
		t.Fatalf("diskSweep: %v", err)
	}
	if image != canonical {
		t.Fatalf("image = %q, want %q", image, canonical)
	}
	if license != "" {
		t.Fatalf("license = %q, want empty", license)
	}
	if _, err := os.Stat(canonical); err != nil {
		t.Fatalf("canonical image missing: %v", err)
	}
}

func TestDiskSweepMovesLicense(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "my.license")
	if err := os.WriteFile(src, []byte("UUID-1234 2024-01-01\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	canonical := filepath.Join(root, "sros.qcow2")
	licenseDir := filepath.Join(root, "tftpboot")

	_, license, err := diskSweep(root, canonical, licenseDir)
	if err != nil {
		t.Fatalf("diskSweep: %v", err)
	}
	want := filepath.Join(licenseDir, "license.txt")
	if license != want {
		t.Fatalf("license = %q, want %q", license, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("canonical license missing: %v", err)
	}
}

func TestInitSelectsIntegratedForSmallNICCount(t *testing.T) {
	cfg := testConfig(t, "int_cp_test_small")
	sup := New(cfg, Params{Username: "admin", Password: "admin", NumNICs: 3}, discardLogger())

	disk := filepath.Join(cfg.RuntimeDir, "sros.qcow2")
	if err := os.WriteFile(disk, []byte("x"), 0o644); err != nil {
		t.Fatalf("write disk: %v", err)
	}

	err := sup.Init(context.Background(), noopLauncher{}, disk)
	if err != nil {
		t.Logf("Init returned (expected on a host without netlink bridge support): %v", err)
		return
	}
	if len(sup.VMs()) != 1 {
		t.Fatalf("len(VMs()) = %d, want 1", len(sup.VMs()))
	}
}

func TestInitRequiresLicenseForDistributedMode(t *testing.T) {
	cfg := testConfig(t, "int_cp_test_dist")
	sup := New(cfg, Params{Username: "admin", Password: "admin", NumNICs: 12}, discardLogger())

	disk := filepath.Join(cfg.RuntimeDir, "sros.qcow2")
	if err := os.WriteFile(disk, []byte("x"), 0o644); err != nil {
		t.Fatalf("write disk: %v", err)
	}

	err := sup.Init(context.Background(), noopLauncher{}, disk)
	if err == nil {
		t.Fatal("expected error for distributed mode without license")
	}
	if !errors.Is(err, ErrLicenseRequired) {
		t.Fatalf("error = %v, want wrapping ErrLicenseRequired", err)
	}
}

// TestHealthTransitionsOnlyOnceToRunning exercises tickAll directly (no
// bridge, no real launcher) against VMs that reach Running immediately,
// proving the health file moves from starting to running exactly once.
func TestHealthTransitionsOnlyOnceToRunning(t *testing.T) {
	// Slot 0 means the VM's console dials 127.0.0.1:5000; stand up a
	// listener there so vm.Start's console.Dial succeeds without a real
	// emulator.
	ln, err := net.Listen("tcp", "127.0.0.1:5000")
	if err != nil {
		t.Skipf("cannot bind 127.0.0.1:5000 in this environment: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn
		}
	}()

	cfg := testConfig(t, "int_cp_test_health")
	sup := New(cfg, Params{Username: "admin", Password: "admin", NumNICs: 1}, discardLogger())

	id := vm.Identity{Slot: 0, DiskImage: "/dev/null", RAMMB: 512}
	v := vm.New("fake", id, fakeBootstrapVariant{}, noopLauncher{}, discardLogger())
	sup.vms = []*vm.VM{v}

	if err := sup.health.Starting(); err != nil {
		t.Fatalf("Starting: %v", err)
	}

	// First tick starts the VM; second tick drives the (instantly
	// completing) bootstrap spin to Running.
	sup.tickAll(context.Background())
	sup.tickAll(context.Background())

	if !sup.everAllRunning {
		t.Fatal("expected everAllRunning after bootstrap completes")
	}

	content, err := os.ReadFile(cfg.HealthFilePath)
	if err != nil {
		t.Fatalf("read health: %v", err)
	}
	if got := string(content); got != "0 running\n" {
		t.Fatalf("health content = %q, want %q", got, "0 running\n")
	}

	// A further tick with every VM still Running must not write the
	// health file again.
	if err := os.Remove(cfg.HealthFilePath); err != nil {
		t.Fatalf("remove health: %v", err)
	}
	sup.tickAll(context.Background())
	if _, err := os.Stat(cfg.HealthFilePath); !os.IsNotExist(err) {
		t.Fatalf("health file written again after the first transition to running: %v", err)
	}
}

// fakeBootstrapVariant completes bootstrap on the very first spin, for
// health-transition tests that don't need a real console dialogue.
type fakeBootstrapVariant struct{}

func (fakeBootstrapVariant) BuildMgmtNICs(v *vm.VM) []string    { return nil }
func (fakeBootstrapVariant) BuildTrafficNICs(v *vm.VM) []string { return nil }
func (fakeBootstrapVariant) BootstrapThreshold() int            { return 60 }
func (fakeBootstrapVariant) BootstrapSpin(ctx context.Context, v *vm.VM) (bool, error) {
	return true, nil
}

func TestNotRunningNamesJoinsUnstartedVMNames(t *testing.T) {
	sup := &Supervisor{logger: discardLogger()}
	v1 := vm.New("a", vm.Identity{}, fakeBootstrapVariant{}, noopLauncher{}, discardLogger())
	v2 := vm.New("b", vm.Identity{}, fakeBootstrapVariant{}, noopLauncher{}, discardLogger())
	sup.vms = []*vm.VM{v1, v2}

	names := sup.notRunningNames()
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}
	_ = time.Second
}
