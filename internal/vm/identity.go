package vm

// Identity is the stable-for-lifetime identification of one emulated
// appliance VM, per spec.md section 3.
type Identity struct {
	// Slot is 0 for integrated/control-plane VMs, >=1 for line cards.
	// Slot is stable for the lifetime of the VM and determines external
	// TCP port assignments.
	Slot int

	DiskImage string
	RAMMB     int

	UUID        string // optional
	FakeRTCBase string // optional, "YYYY-MM-DD"

	SMBIOS []string

	NumNICs  int // including the management NIC at index 0
	NICModel string
}

// SerialPort is the TCP port the emulator's serial console listens on for
// this VM's slot.
func (id Identity) SerialPort() int {
	return 5000 + id.Slot
}

// TrafficPort returns the TCP port a given traffic NIC index listens on.
// nicIndex is the global (post line-card-offset) index.
func TrafficPort(nicIndex int) int {
	return 10000 + nicIndex
}
