// Package macgen generates the deterministic-per-boot MAC addresses used
// for every emulated NIC, mirroring vrnetlab's gen_mac.
package macgen

import (
	"crypto/rand"
	"fmt"
)

// oui is the QEMU/KVM vendor-neutral OUI vrnetlab has always used for its
// emulated NICs.
const oui = "52:54:00"

// Gen returns a MAC address in the fixed OUI space with the given last
// octet. The two middle bytes are randomised per call; they only exist to
// avoid collisions across reboots and carry no identity meaning. The last
// octet is the identity anchor and is never randomised.
func Gen(lastOctet byte) (string, error) {
	var mid [2]byte
	if _, err := rand.Read(mid[:]); err != nil {
		return "", fmt.Errorf("macgen: read random bytes: %w", err)
	}
	return fmt.Sprintf("%s:%02x:%02x:%02x", oui, mid[0], mid[1], lastOctet), nil
}

// MustGen panics on entropy failure. Used at call sites (NIC argument
// construction) where a missing source of randomness is unrecoverable
// anyway and plumbing an error return through every caller buys nothing.
func MustGen(lastOctet byte) string {
	mac, err := Gen(lastOctet)
	if err != nil {
		panic(err)
	}
	return mac
}
