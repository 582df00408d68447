package appliance

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// License is the parsed content of /tftpboot/license.txt.
type License struct {
	UUID        string
	FakeRTCBase string // "YYYY-MM-DD", one day after the license's start date
}

var dateRE = regexp.MustCompile(`([0-9]{4}-[0-9]{2}-)([0-9]{2})`)

// ParseLicense reads and parses the license file at path. The first
// whitespace-delimited token (ignoring comment lines starting with '#') is
// the license UUID; the first YYYY-MM-DD substring is incremented by one
// day to form the fake RTC base, matching vrnetlab's SROS_vm.read_license.
//
// Per spec.md section 9's open question, the UUID is used verbatim and is
// NOT mangled: the source computes a mangled UUID and then immediately
// overwrites it with the original input on the next line, so mangling has
// no observable effect in the original either.
func ParseLicense(path string) (*License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("appliance: read license: %w", err)
	}

	var content strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	text := content.String()

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("appliance: license file %s has no content", path)
	}
	uuid := fields[0]

	lic := &License{UUID: uuid}

	if m := dateRE.FindString(text); m != "" {
		start, err := time.Parse("2006-01-02", m)
		if err != nil {
			return nil, fmt.Errorf("appliance: parse license date: %w", err)
		}
		lic.FakeRTCBase = start.AddDate(0, 0, 1).Format("2006-01-02")
	}

	return lic, nil
}

// revUUIDPart reverses a UUID segment two hex digits (one byte) at a
// time, per original_source/sros/docker/launch.py's uuid_rev_part. It is
// self-inverse: reversing twice restores the original string. ParseLicense
// never calls this — see the no-mangle decision above — but the function
// itself is a testable property spec.md section 8 names independently of
// that decision.
func revUUIDPart(part string) string {
	var b strings.Builder
	b.Grow(len(part))
	for i := len(part) - 2; i >= 0; i -= 2 {
		b.WriteByte(part[i])
		b.WriteByte(part[i+1])
	}
	return b.String()
}

// ValidUUID reports whether the license's UUID is well-formed RFC 4122,
// which qemu's -uuid flag requires. Some vendor license files carry a
// vendor-specific token here instead of a real UUID; callers should treat
// a false return as "pass -uuid anyway and let qemu reject it" rather than
// silently dropping or mangling the value, per spec.md's no-mangling
// decision.
func (l *License) ValidUUID() bool {
	_, err := uuid.Parse(l.UUID)
	return err == nil
}
