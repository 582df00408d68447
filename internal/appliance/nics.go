package appliance

import (
	"fmt"

	"github.com/vrnetlab/vrctl/internal/macgen"
)

// mgmtDevice returns the -device/-netdev pair for a user-mode-NAT
// management interface on netdev id p00, forwarding SSH/NETCONF into the
// guest per spec.md section 4.3's default mgmt NIC shape.
func mgmtDevice(nicModel string) []string {
	mac := macgen.MustGen(0)
	return []string{
		"-device", fmt.Sprintf("%s,netdev=p00,mac=%s", nicModel, mac),
		"-netdev", "user,id=p00,net=10.0.0.0/24,tftp=/tftpboot,hostfwd=tcp::2022-10.0.0.15:22,hostfwd=tcp::2830-10.0.0.15:830",
	}
}

// tapDevice returns the -device/-netdev pair wiring a NIC with the given
// netdev id straight to a host TAP interface (no script up/down, the
// supervisor owns bridging).
func tapDevice(nicModel, netdevID, tapName string, lastOctet byte) []string {
	mac := macgen.MustGen(lastOctet)
	return []string{
		"-device", fmt.Sprintf("%s,netdev=%s,mac=%s", nicModel, netdevID, mac),
		"-netdev", fmt.Sprintf("tap,ifname=%s,id=%s,script=no,downscript=no", tapName, netdevID),
	}
}

// trafficDevice returns the -device/-netdev pair for one socket-backed
// traffic NIC listening on 10000+nicIndex.
func trafficDevice(nicModel string, nicIndex int) []string {
	mac := macgen.MustGen(byte(nicIndex))
	netdevID := fmt.Sprintf("p%02d", nicIndex)
	return []string{
		"-device", fmt.Sprintf("%s,netdev=%s,mac=%s", nicModel, netdevID, mac),
		"-netdev", fmt.Sprintf("socket,id=%s,listen=:%d", netdevID, 10000+nicIndex),
	}
}

// trafficDevices builds count traffic NICs starting at nicIndex offset+1
// through offset+count, matching the source's gen_nics/LineCard offset
// scheme.
func trafficDevices(nicModel string, offset, count int) []string {
	var args []string
	for j := 1; j <= count; j++ {
		args = append(args, trafficDevice(nicModel, offset+j)...)
	}
	return args
}
