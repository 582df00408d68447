package appliance

import (
	"context"
	"fmt"

	"github.com/vrnetlab/vrctl/internal/macgen"
	"github.com/vrnetlab/vrctl/internal/vm"
)

// LineCard is one line card VM of a distributed appliance: 6 traffic
// NICs offset by 6*(slot-1), a TAP NIC to vfpc{slot}-int bridged at
// 10000-byte MTU, no bootstrap script — a line card is Running as soon as
// its console has been opened and closed. Grounded on
// original_source/sros/docker/launch.py's SROS_lc.
type LineCard struct {
	Slot       int
	NewChassis bool

	threshold int
}

// TrafficNICsPerCard is the fixed traffic-NIC count of a line card.
const TrafficNICsPerCard = 6

// NewLineCard returns a LineCard variant for the given slot (>=1).
func NewLineCard(slot int, newChassis bool) *LineCard {
	return &LineCard{Slot: slot, NewChassis: newChassis, threshold: 60}
}

func (a *LineCard) SMBIOS() string {
	if a.NewChassis {
		return fmt.Sprintf("type=1,product=TIMOS:chassis=SR-14s slot=%d sfm=sfm-s card=xcm-14s mda/1=s36-400gb-qsfpdd", a.Slot)
	}
	return fmt.Sprintf("type=1,product=TIMOS:chassis=XRS-20 chassis-topology=XRS-40 slot=%d sfm=sfm-x20-b card=xcm-x20 mda/1=cx20-10g-sfp", a.Slot)
}

// Offset is the NIC-index offset this card's traffic NICs start at, so
// that slots partition the port space without overlap (spec.md section
// 4.3).
func (a *LineCard) Offset() int { return TrafficNICsPerCard * (a.Slot - 1) }

func (a *LineCard) tapName() string { return fmt.Sprintf("vfpc%d-int", a.Slot) }

func (a *LineCard) BuildMgmtNICs(v *vm.VM) []string {
	// Line cards use a bare mgmt NIC (no TFTP/hostfwd - they never serve
	// SSH/NETCONF themselves) plus the internal control-plane uplink,
	// per SROS_lc.gen_mgmt.
	args := []string{
		"-device", fmt.Sprintf("%s,netdev=mgmt,mac=%s", defaultNICModel, macgen.MustGen(0)),
		"-netdev", "user,id=mgmt,net=10.0.0.0/24",
	}
	args = append(args, tapDevice(defaultNICModel, "vfpc-int", a.tapName(), 0)...)
	return args
}

func (a *LineCard) BuildTrafficNICs(v *vm.VM) []string {
	return trafficDevices(defaultNICModel, a.Offset(), TrafficNICsPerCard)
}

func (a *LineCard) BootstrapThreshold() int { return a.threshold }

// BootstrapSpin does nothing: a line card is considered Running as soon
// as its serial console has been opened and closed.
func (a *LineCard) BootstrapSpin(ctx context.Context, v *vm.VM) (bool, error) {
	_ = v.Console().Close()
	return true, nil
}

var _ vm.Variant = (*LineCard)(nil)
