package appliance

import (
	"context"
	"fmt"
	"time"

	"github.com/vrnetlab/vrctl/internal/macgen"
	"github.com/vrnetlab/vrctl/internal/vm"
)

// NumPCIBridges and NICsPerPCIBridge describe how IOS-XR's 128 traffic NICs
// are spread across virtual PCI bridges, per
// original_source/xrv/docker/launch_xrv.py's start_vm.
const (
	IOSXRNumNICs     = 128
	NumPCIBridges    = 6
	NICsPerPCIBridge = 26
)

// IOSXR is the sibling appliance family: 128 NICs, a longer console
// dialogue covering initial user creation, crypto key generation, and
// mgmt IP assignment, with a credential-rotation list that tries known
// defaults before freshly-set credentials.
type IOSXR struct {
	Credentials

	threshold int

	credentials [][2]string // rotation list, index 0 tried first
	xrReady     bool
	userCreated bool
}

// NewIOSXR returns an IOSXR variant with the 300-spin watchdog threshold
// from original_source (much longer than SR-OS's 60, since XR's full
// system-configuration phase is slow).
func NewIOSXR(creds Credentials) *IOSXR {
	return &IOSXR{
		Credentials: creds,
		threshold:   300,
		credentials: [][2]string{{"admin", "admin"}},
	}
}

func (a *IOSXR) BuildMgmtNICs(v *vm.VM) []string {
	return mgmtDevice(defaultNICModel)
}

// BuildTrafficNICs lays out 128 NICs across 6 PCI bridges, addr/bus
// computed exactly as launch_xrv.py's start_vm does. The netdev ids are
// offset by one from the raw index to leave p00 reserved for mgmt
// (matching the source's `i+1` listen-port offset, applied here too).
func (a *IOSXR) BuildTrafficNICs(v *vm.VM) []string {
	var args []string
	for i := 0; i < IOSXRNumNICs; i++ {
		pciBus := i/NICsPerPCIBridge + 1
		addr := i%NICsPerPCIBridge + 1
		mac := macgen.MustGen(byte(i))
		netdevID := fmt.Sprintf("p%02d", i+1)
		args = append(args,
			"-device", fmt.Sprintf("%s,netdev=%s,mac=%s,bus=pci.%d,addr=0x%x", defaultNICModel, netdevID, mac, pciBus, addr),
			"-netdev", fmt.Sprintf("socket,id=%s,listen=:%d", netdevID, 10000+i+1),
		)
	}
	return args
}

// PCIBridgeArgs returns the -device pci-bridge arguments IOS-XR requires
// ahead of any NIC attachment, one per virtual PCI bridge.
func (a *IOSXR) PCIBridgeArgs() []string {
	var args []string
	for i := 1; i <= NumPCIBridges; i++ {
		args = append(args, "-device", fmt.Sprintf("pci-bridge,chassis_nr=%d,id=pci.%d", i, i))
	}
	return args
}

func (a *IOSXR) BootstrapThreshold() int { return a.threshold }

// BootstrapSpin drives the IOS-XR console dialogue: press-return, wait
// for system configuration complete, create the initial user if
// prompted, log in by trying the credential rotation list, then — once
// both xrReady and the login prompt have been seen — run the full
// bootstrap configuration. Grounded on
// original_source/xrv/docker/launch_xrv.py's bootstrap_spin.
func (a *IOSXR) BootstrapSpin(ctx context.Context, v *vm.VM) (bool, error) {
	idx, _, preceding, err := v.Console().Expect(ctx, [][]byte{
		[]byte("Press RETURN to get started"),
		[]byte("SYSTEM CONFIGURATION COMPLETE"),
		[]byte("Enter root-system username"),
		[]byte("Username:"),
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
	// Any matched pattern counts as console output too: the source's
	// bootstrap_spin resets self.spins on every non-empty read
	// regardless of which branch of the if/elif chain fired.
	v.NoteOutput()

	c := v.Console()
	switch idx {
	case 0: // press return to get started
		_ = c.WriteLine("")
	case 1: // system configuration complete
		_ = c.WriteLine("")
		a.xrReady = true
	case 2: // initial user config
		_ = c.WriteLine(a.Username)
		if _, err := c.ReadUntil(ctx, []byte("Enter secret:")); err != nil {
			return false, err
		}
		_ = c.WriteLine(a.Password)
		if _, err := c.ReadUntil(ctx, []byte("Enter secret again:")); err != nil {
			return false, err
		}
		_ = c.WriteLine(a.Password)
		a.credentials = append(a.credentials, [2]string{a.Username, a.Password})
	case 3: // login prompt
		if len(a.credentials) == 0 {
			return false, fmt.Errorf("appliance: iosxr: no more credentials to try")
		}
		cred := a.credentials[0]
		a.credentials = a.credentials[1:]
		_ = c.WriteLine(cred[0])
		if _, err := c.ReadUntil(ctx, []byte("Password:")); err != nil {
			return false, err
		}
		_ = c.WriteLine(cred[1])
	case 4: // shell prompt
		if a.xrReady {
			a.bootstrapConfig(v)
			_ = c.Close()
			return true, nil
		}
	}

	return false, nil
}

// bootstrapConfig applies the full dialogue: crypto keys, user creation,
// NETCONF/SSH/XML agents, and the mgmt interface IP assignment.
func (a *IOSXR) bootstrapConfig(v *vm.VM) {
	c := v.Console()
	_ = c.WriteLine("")
	_ = c.WriteLine("crypto key generate rsa")
	if a.Username != "" && a.Password != "" {
		_ = c.WriteLine("admin")
		_ = c.WriteLine("configure")
		_ = c.WriteLine(fmt.Sprintf("username %s group root-system", a.Username))
		_ = c.WriteLine(fmt.Sprintf("username %s group cisco-support", a.Username))
		_ = c.WriteLine(fmt.Sprintf("username %s secret %s", a.Username, a.Password))
		_ = c.WriteLine("commit")
		_ = c.WriteLine("exit")
		_ = c.WriteLine("exit")
	}
	_ = c.WriteLine("configure")
	_ = c.WriteLine("ssh server v2")
	_ = c.WriteLine("ssh server netconf port 830")
	_ = c.WriteLine("ssh server netconf vrf default")
	_ = c.WriteLine("netconf agent ssh")
	_ = c.WriteLine("netconf-yang agent ssh")
	_ = c.WriteLine("xml agent tty")
	_ = c.WriteLine("interface MgmtEth 0/0/CPU0/0")
	_ = c.WriteLine("no shutdown")
	_ = c.WriteLine("ipv4 address 10.0.0.15/24")
	_ = c.WriteLine("exit")
	_ = c.WriteLine("commit")
	_ = c.WriteLine("exit")
}

var _ vm.Variant = (*IOSXR)(nil)
