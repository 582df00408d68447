// Package supervisor implements the top-level VR: filesystem sweep and
// variant selection at startup, the internal bridge, SSH/NETCONF relays,
// and the round-robin supervision loop over every owned VM. Grounded on
// original_source/common/vrnetlab.py's VR class and
// original_source/sros/docker/launch.py's SROS top-level class, following
// the teacher's daemon-wiring shape from cmd/volantd/main.go and
// internal/server/app.App's context-driven graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/vrnetlab/vrctl/internal/appliance"
	"github.com/vrnetlab/vrctl/internal/config"
	"github.com/vrnetlab/vrctl/internal/healthfile"
	"github.com/vrnetlab/vrctl/internal/netutil"
	"github.com/vrnetlab/vrctl/internal/vm"
)

// Params mirrors the CLI flags that shape the appliance topology:
// username/password/NIC count/newchassis.
type Params struct {
	Username   string
	Password   string
	NumNICs    int
	NewChassis bool
}

// Supervisor owns the set of VMs composing one appliance instance (one
// Integrated VM, or one ControlPlane + N LineCard VMs) plus the shared
// internal bridge and management relays.
type Supervisor struct {
	cfg    config.SupervisorConfig
	params Params
	logger *slog.Logger

	bridge   *netutil.BridgeManager
	vms      []*vm.VM
	relays   []*relay
	health   *healthfile.Writer
	recorder Recorder

	everAllRunning bool
}

// New constructs a Supervisor. Call Init before Start.
func New(cfg config.SupervisorConfig, params Params, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		params: params,
		logger: logger,
		bridge: netutil.NewBridgeManager(cfg.BridgeName),
		health: healthfile.New(cfg.HealthFilePath),
	}
}

var diskImageRE = regexp.MustCompile(`\.(qcow2|vmdk)$`)
var licenseRE = regexp.MustCompile(`\.license$`)

// diskSweep scans root for a disk image and an optional license file and
// moves them to canonical names, matching the source's directory-listing
// rename loop in SROS.__init__.
func diskSweep(root, canonicalImage, canonicalLicenseDir string) (imagePath string, licensePath string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", "", fmt.Errorf("supervisor: read %s: %w", root, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		full := filepath.Join(root, name)
		switch {
		case diskImageRE.MatchString(name):
			if err := os.Rename(full, canonicalImage); err != nil {
				return "", "", fmt.Errorf("supervisor: move disk image %s: %w", full, err)
			}
			imagePath = canonicalImage
		case licenseRE.MatchString(name):
			dst := filepath.Join(canonicalLicenseDir, "license.txt")
			if err := os.MkdirAll(canonicalLicenseDir, 0o755); err != nil {
				return "", "", fmt.Errorf("supervisor: create %s: %w", canonicalLicenseDir, err)
			}
			if err := os.Rename(full, dst); err != nil {
				return "", "", fmt.Errorf("supervisor: move license %s: %w", full, err)
			}
			licensePath = dst
		}
	}
	return imagePath, licensePath, nil
}

// Init sweeps the filesystem for a disk image and optional license,
// selects Integrated vs distributed topology, builds the VM set, and
// ensures the internal bridge exists. Returns an error wrapping
// ErrLicenseRequired if a distributed topology was requested without a
// license present, per spec.md's exit-code-1 configuration error.
func (s *Supervisor) Init(ctx context.Context, launcher vm.Launcher, diskImage string) error {
	imagePath, licensePath, err := diskSweep(s.cfg.RuntimeDir, diskImage, s.cfg.TFTPRoot)
	if err != nil {
		return err
	}
	if imagePath == "" {
		imagePath = diskImage
	}

	creds := appliance.Credentials{Username: s.params.Username, Password: s.params.Password}

	if s.params.NumNICs <= 5 {
		id := vm.Identity{
			Slot:      0,
			DiskImage: imagePath,
			RAMMB:     4096,
			NumNICs:   appliance.IntegratedNumTraffic + 1, // + management NIC
			NICModel:  "e1000",
		}
		variant := appliance.NewIntegrated(creds, s.params.NewChassis)
		id.SMBIOS = []string{variant.SMBIOS()}
		s.vms = append(s.vms, vm.New("integrated", id, variant, launcher, s.logger))
		return s.ensureBridge()
	}

	if licensePath == "" {
		return fmt.Errorf("%w: distributed mode requires %d NICs but no license file was found", ErrLicenseRequired, s.params.NumNICs)
	}

	lic, err := appliance.ParseLicense(licensePath)
	if err != nil {
		return fmt.Errorf("supervisor: parse license: %w", err)
	}
	if !lic.ValidUUID() {
		s.logger.Warn("license uuid is not a well-formed RFC 4122 uuid, passing it to qemu unchanged", "uuid", lic.UUID)
	}

	numLineCards := int(math.Ceil(float64(s.params.NumNICs) / float64(appliance.TrafficNICsPerCard)))

	cpVariant := appliance.NewControlPlane(creds, s.params.NewChassis, numLineCards)
	cpID := vm.Identity{
		Slot:        0,
		DiskImage:   imagePath,
		RAMMB:       4096,
		UUID:        lic.UUID,
		FakeRTCBase: lic.FakeRTCBase,
		SMBIOS:      []string{cpVariant.SMBIOS()},
		NICModel:    "e1000",
	}
	s.vms = append(s.vms, vm.New("control-plane", cpID, cpVariant, launcher, s.logger))

	for slot := 1; slot <= numLineCards; slot++ {
		lcVariant := appliance.NewLineCard(slot, s.params.NewChassis)
		lcID := vm.Identity{
			Slot:        slot,
			DiskImage:   imagePath,
			RAMMB:       4096,
			UUID:        lic.UUID,
			FakeRTCBase: lic.FakeRTCBase,
			SMBIOS:      []string{lcVariant.SMBIOS()},
			NumNICs:     appliance.TrafficNICsPerCard + 1, // + management NIC
			NICModel:    "e1000",
		}
		name := fmt.Sprintf("line-card-%d", slot)
		s.vms = append(s.vms, vm.New(name, lcID, lcVariant, launcher, s.logger))
	}

	if err := s.ensureBridge(); err != nil {
		return err
	}
	taps := []string{"vcp-int"}
	for slot := 1; slot <= numLineCards; slot++ {
		taps = append(taps, netutil.LineCardTapName(slot))
	}
	for _, tap := range taps {
		if err := s.bridge.EnsureTap(tap, netutil.LineCardMTU); err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
	}
	return nil
}

func (s *Supervisor) ensureBridge() error {
	if err := s.bridge.EnsureBridge(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

// ErrLicenseRequired is returned by Init when a distributed topology is
// requested without a license file present.
var ErrLicenseRequired = fmt.Errorf("supervisor: license required for distributed topology")

// Start runs the SSH/NETCONF relays and the supervision loop until ctx is
// cancelled. It returns nil on clean shutdown.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.health.Starting(); err != nil {
		s.logger.Warn("write health file", "error", err)
	}

	mgmtHost := "127.0.0.1"
	sshRelay := newRelay(s.logger, ":22", fmt.Sprintf("%s:2022", mgmtHost))
	netconfRelay := newRelay(s.logger, ":830", fmt.Sprintf("%s:2830", mgmtHost))
	s.relays = []*relay{sshRelay, netconfRelay}
	for _, r := range s.relays {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, r := range s.relays {
			r.Stop()
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll(context.Background())
			return nil
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

// Recorder is the optional boot-history sink (internal/supervisor/healthlog
// satisfies this). Wiring one in is purely additive: Tick/health-file
// behavior is unaffected if none is set.
type Recorder interface {
	Record(ctx context.Context, vmName, state, detail string, occurredAt time.Time) error
}

// SetRecorder attaches a boot-history recorder. Must be called before Start.
func (s *Supervisor) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Supervisor) tickAll(ctx context.Context) {
	allRunning := true
	for _, v := range s.vms {
		prevState := v.State()
		if err := v.Tick(ctx); err != nil {
			s.logger.Error("vm tick failed", "vm", v.Name, "error", err)
		}
		if s.recorder != nil && v.State() != prevState {
			if err := s.recorder.Record(ctx, v.Name, v.State().String(), "", time.Now()); err != nil {
				s.logger.Debug("record boot event failed", "error", err)
			}
		}
		if !v.Running() {
			allRunning = false
		}
	}

	if allRunning {
		if !s.everAllRunning {
			s.everAllRunning = true
			if err := s.health.Running(); err != nil {
				s.logger.Warn("write health file", "error", err)
			}
		}
	} else if s.everAllRunning {
		names := s.notRunningNames()
		if err := s.health.Unhealthy(fmt.Sprintf("vm %s not running", strings.Join(names, ","))); err != nil {
			s.logger.Warn("write health file", "error", err)
		}
	}
}

func (s *Supervisor) notRunningNames() []string {
	var names []string
	for _, v := range s.vms {
		if !v.Running() {
			names = append(names, v.Name)
		}
	}
	return names
}

func (s *Supervisor) stopAll(ctx context.Context) {
	for _, v := range s.vms {
		if err := v.Stop(ctx); err != nil {
			s.logger.Warn("stop vm", "vm", v.Name, "error", err)
		}
	}
}

// VMs exposes the supervised VM set, read-only, for the supplemental
// status API.
func (s *Supervisor) VMs() []*vm.VM {
	return s.vms
}
