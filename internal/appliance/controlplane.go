package appliance

import (
	"context"
	"fmt"
	"time"

	"github.com/vrnetlab/vrctl/internal/vm"
)

// ControlPlane is the control-plane VM of a distributed appliance: no
// traffic NICs, a TAP NIC to vcp-int bridged by the supervisor into
// int_cp, and a bootstrap script that declares power shelves/SFMs/line
// cards. Grounded on original_source/sros/docker/launch.py's SROS_cp.
type ControlPlane struct {
	Credentials
	NewChassis bool
	NumLineCards int

	threshold int
}

// NewControlPlane returns a ControlPlane variant.
func NewControlPlane(creds Credentials, newChassis bool, numLineCards int) *ControlPlane {
	return &ControlPlane{Credentials: creds, NewChassis: newChassis, NumLineCards: numLineCards, threshold: 60}
}

func (a *ControlPlane) SMBIOS() string {
	if a.NewChassis {
		return "type=1,product=TIMOS:address=10.0.0.15/24@active license-file=tftp://10.0.0.2/license.txt chassis=SR-14s slot=A sfm=sfm-s card=cpm-s"
	}
	return "type=1,product=TIMOS:address=10.0.0.15/24@active license-file=tftp://10.0.0.2/license.txt chassis=XRS-20 chassis-topology=XRS-40 slot=A sfm=sfm-x20-b card=cpm-x20"
}

func (a *ControlPlane) BuildMgmtNICs(v *vm.VM) []string {
	args := mgmtDevice(defaultNICModel)
	args = append(args, tapDevice(defaultNICModel, "vcp-int", "vcp-int", 1)...)
	return args
}

func (a *ControlPlane) BuildTrafficNICs(v *vm.VM) []string { return nil }

func (a *ControlPlane) BootstrapThreshold() int { return a.threshold }

func (a *ControlPlane) BootstrapSpin(ctx context.Context, v *vm.VM) (bool, error) {
	idx, _, preceding, err := v.Console().Expect(ctx, [][]byte{
		[]byte("Login:"),
		[]byte("#"),
	}, time.Second)
	if err != nil {
		return false, nil
	}
	if idx < 0 {
		if len(preceding) > 0 {
			v.NoteOutput()
		}
		return false, nil
	}

	if idx == 0 {
		_ = v.Console().WriteLine("admin")
		if _, err := v.Console().ReadUntil(ctx, []byte("Password:")); err != nil {
			return false, err
		}
		_ = v.Console().WriteLine("admin")
	}

	a.bootstrapConfig(v)
	_ = v.Console().Close()
	return true, nil
}

// bootstrapConfig declares the user/NETCONF, power shelves/modules (new
// chassis only), all SFMs, and each line card's card-type/MDA, per
// SROS_cp.bootstrap_config.
func (a *ControlPlane) bootstrapConfig(v *vm.VM) {
	c := v.Console()
	if a.Username != "" && a.Password != "" {
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" password %s`, a.Username, a.Password))
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" access console netconf`, a.Username))
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" console member "administrative" "default"`, a.Username))
	}
	_ = c.WriteLine("configure system netconf no shutdown")
	_ = c.WriteLine(`configure system security profile "administrative" netconf base-op-authorization lock`)

	if a.NewChassis {
		for i := 1; i <= 2; i++ {
			_ = c.WriteLine(fmt.Sprintf("configure system power-shelf %d power-shelf-type ps-a10-shelf-dc", i))
			for m := 1; m <= 10; m++ {
				_ = c.WriteLine(fmt.Sprintf("configure system power-shelf %d power-module %d power-module-type ps-a-dc-6000", i, m))
			}
		}
		for i := 1; i <= 8; i++ {
			_ = c.WriteLine(fmt.Sprintf("configure sfm %d sfm-type sfm-s", i))
		}
	} else {
		for i := 1; i <= 16; i++ {
			_ = c.WriteLine(fmt.Sprintf("configure sfm %d sfm-type sfm-x20-b", i))
		}
	}

	if !a.NewChassis {
		for i := 1; i <= a.NumLineCards; i++ {
			_ = c.WriteLine(fmt.Sprintf("configure card %d card-type xcm-x20", i))
			_ = c.WriteLine(fmt.Sprintf("configure card %d mda 1 mda-type cx20-10g-sfp", i))
		}
	}

	_ = c.WriteLine("admin save")
	_ = c.WriteLine("logout")
}

var _ vm.Variant = (*ControlPlane)(nil)
