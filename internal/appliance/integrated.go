package appliance

import (
	"context"
	"fmt"
	"time"

	"github.com/vrnetlab/vrctl/internal/vm"
)

const defaultNICModel = "e1000"

// Credentials is the username/password the bootstrap script configures on
// the appliance.
type Credentials struct {
	Username string
	Password string
}

// IntegratedNumTraffic is the fixed traffic-NIC count of the Integrated
// variant. original_source/sros/docker/launch.py's SROS_integrated.__init__
// hardcodes self.num_nics = 5 unconditionally; the top-level SROS class
// never threads --num-nics into it, so this is not configurable.
const IntegratedNumTraffic = 5

// Integrated is the single-VM SR-OS-family appliance: 5 traffic NICs, one
// dummy TAP NIC with no bridging, SMBIOS declaring chassis/slot-A/card/
// MDA. Grounded on original_source/sros/docker/launch.py's
// SROS_integrated.
type Integrated struct {
	Credentials
	NewChassis bool

	threshold int
}

// NewIntegrated returns an Integrated variant with the SR-OS watchdog
// threshold of 60 polls, per original_source. --num-nics only selects
// this topology (supervisor.Init); it does not change its NIC count.
func NewIntegrated(creds Credentials, newChassis bool) *Integrated {
	return &Integrated{Credentials: creds, NewChassis: newChassis, threshold: 60}
}

// SMBIOS returns the SMBIOS type=1 string for this chassis configuration.
func (a *Integrated) SMBIOS() string {
	if a.NewChassis {
		return "type=1,product=TIMOS:address=10.0.0.15/24@active license-file=tftp://10.0.0.2/license.txt slot=A chassis=SR-1 card=iom-1 mda/1=me6-100gb-qsfp28"
	}
	return "type=1,product=TIMOS:address=10.0.0.15/24@active license-file=tftp://10.0.0.2/license.txt slot=A chassis=SR-c12 card=cfm-xp-b mda/1=m20-1gb-xp-sfp"
}

func (a *Integrated) BuildMgmtNICs(v *vm.VM) []string {
	args := mgmtDevice(defaultNICModel)
	args = append(args, tapDevice(defaultNICModel, "dummy0", "dummy0", 1)...)
	return args
}

func (a *Integrated) BuildTrafficNICs(v *vm.VM) []string {
	return trafficDevices(defaultNICModel, 0, IntegratedNumTraffic)
}

func (a *Integrated) BootstrapThreshold() int { return a.threshold }

// BootstrapSpin drives the SR-OS console dialogue: login if prompted, then
// run the fixed bootstrap_config sequence and declare the VM Running.
func (a *Integrated) BootstrapSpin(ctx context.Context, v *vm.VM) (bool, error) {
	idx, _, preceding, err := v.Console().Expect(ctx, [][]byte{
		[]byte("Login:"),
		[]byte("#"),
	}, time.Second)
	if err != nil {
		return false, nil // timeout or transient read error: keep spinning
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

// bootstrapConfig sends the fixed configuration dialogue, per
// SROS_integrated.bootstrap_config.
func (a *Integrated) bootstrapConfig(v *vm.VM) {
	c := v.Console()
	if a.Username != "" && a.Password != "" {
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" password %s`, a.Username, a.Password))
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" access console netconf`, a.Username))
		_ = c.WriteLine(fmt.Sprintf(`configure system security user "%s" console member "administrative" "default"`, a.Username))
	}
	_ = c.WriteLine("configure system netconf no shutdown")
	_ = c.WriteLine(`configure system security profile "administrative" netconf base-op-authorization lock`)
	_ = c.WriteLine("configure card 1 mda 1 shutdown")
	_ = c.WriteLine("configure card 1 mda 1 no mda-type")
	_ = c.WriteLine("configure card 1 shutdown")
	_ = c.WriteLine("configure card 1 no card-type")
	if a.NewChassis {
		_ = c.WriteLine("configure card 1 card-type iom-1 level he")
		_ = c.WriteLine("configure card 1 mda 1 mda-type me6-100gb-qsfp28")
	} else {
		_ = c.WriteLine("configure card 1 card-type iom-xp-b")
		_ = c.WriteLine("configure card 1 mcm 1 mcm-type mcm-xp")
		_ = c.WriteLine("configure card 1 mda 1 mda-type m20-1gb-xp-sfp")
	}
	_ = c.WriteLine("configure card 1 no shutdown")
	_ = c.WriteLine("admin save")
	_ = c.WriteLine("logout")
}

var _ vm.Variant = (*Integrated)(nil)
