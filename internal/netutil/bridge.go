package netutil

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// BridgeManager creates the internal control-plane bridge and enslaves the
// TAP devices the appliance variants declare on their qemu command lines
// (dummy0, vcp-int, vfpc{N}-int). Grounded on the teacher's
// internal/server/orchestrator/network.BridgeManager, adapted from
// per-VM-hashed tap names to the fixed names vrnetlab's appliance
// variants expect.
type BridgeManager struct {
	BridgeName string
}

// NewBridgeManager returns a manager for the given bridge name (spec.md's
// default is int_cp).
func NewBridgeManager(bridgeName string) *BridgeManager {
	return &BridgeManager{BridgeName: bridgeName}
}

// EnsureBridge creates the bridge if it does not exist and brings it up.
func (b *BridgeManager) EnsureBridge() error {
	link, err := netlink.LinkByName(b.BridgeName)
	if err != nil {
		la := netlink.NewLinkAttrs()
		la.Name = b.BridgeName
		br := &netlink.Bridge{LinkAttrs: la}
		if err := netlink.LinkAdd(br); err != nil {
			return fmt.Errorf("netutil: create bridge %s: %w", b.BridgeName, err)
		}
		link = br
	}

	if link.Attrs().Flags&net.FlagUp == 0 {
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("netutil: bring bridge %s up: %w", b.BridgeName, err)
		}
	}
	return nil
}

// EnsureTap creates a TAP device with the given name (if it does not
// already exist), attaches it to the managed bridge, sets its MTU, and
// brings it up. mtu of 0 leaves the kernel default (1500) in place.
func (b *BridgeManager) EnsureTap(tapName string, mtu int) error {
	if err := b.EnsureBridge(); err != nil {
		return err
	}

	link, err := netlink.LinkByName(tapName)
	if err != nil {
		la := netlink.NewLinkAttrs()
		la.Name = tapName
		tuntap := &netlink.Tuntap{
			LinkAttrs: la,
			Mode:      netlink.TUNTAP_MODE_TAP,
			Flags:     netlink.TUNTAP_DEFAULTS,
		}
		if err := netlink.LinkAdd(tuntap); err != nil {
			return fmt.Errorf("netutil: create tap %s: %w", tapName, err)
		}
		link = tuntap
	}

	if mtu > 0 {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			return fmt.Errorf("netutil: set mtu on %s: %w", tapName, err)
		}
	}

	bridge, err := netlink.LinkByName(b.BridgeName)
	if err != nil {
		return fmt.Errorf("netutil: lookup bridge %s: %w", b.BridgeName, err)
	}

	if err := netlink.LinkSetMaster(link, bridge); err != nil {
		return fmt.Errorf("netutil: attach %s to bridge %s: %w", tapName, b.BridgeName, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("netutil: bring %s up: %w", tapName, err)
	}

	return nil
}

// RemoveTap detaches and deletes the named TAP device. A missing device
// is not an error: cleanup is idempotent.
func (b *BridgeManager) RemoveTap(tapName string) error {
	link, err := netlink.LinkByName(tapName)
	if err != nil {
		return nil
	}
	_ = netlink.LinkSetDown(link)
	_ = netlink.LinkSetNoMaster(link)
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("netutil: delete tap %s: %w", tapName, err)
	}
	return nil
}

// LineCardTapName returns the internal TAP name a line card's uplink NIC
// attaches to, e.g. vfpc3-int for slot 3.
func LineCardTapName(slot int) string {
	return fmt.Sprintf("vfpc%d-int", slot)
}

// LineCardMTU is the MTU vrnetlab sets on line-card/control-plane uplinks
// to accommodate jumbo internal fabric frames.
const LineCardMTU = 10000
