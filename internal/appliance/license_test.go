package appliance

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLicense(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "license.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write license: %v", err)
	}
	return path
}

func TestParseLicenseUUIDAndDate(t *testing.T) {
	path := writeLicense(t, "abc-123-uuid 2024-05-10 some trailing text\n")

	lic, err := ParseLicense(path)
	if err != nil {
		t.Fatalf("ParseLicense: %v", err)
	}
	if lic.UUID != "abc-123-uuid" {
		t.Fatalf("UUID = %q, want %q", lic.UUID, "abc-123-uuid")
	}
	if lic.FakeRTCBase != "2024-05-11" {
		t.Fatalf("FakeRTCBase = %q, want %q", lic.FakeRTCBase, "2024-05-11")
	}
}

func TestParseLicenseIgnoresCommentLines(t *testing.T) {
	path := writeLicense(t, "# this is a comment\nreal-uuid 2030-01-31\n")

	lic, err := ParseLicense(path)
	if err != nil {
		t.Fatalf("ParseLicense: %v", err)
	}
	if lic.UUID != "real-uuid" {
		t.Fatalf("UUID = %q, want %q", lic.UUID, "real-uuid")
	}
	if lic.FakeRTCBase != "2030-02-01" {
		t.Fatalf("FakeRTCBase = %q, want %q", lic.FakeRTCBase, "2030-02-01")
	}
}

func TestParseLicenseMissingFile(t *testing.T) {
	if _, err := ParseLicense(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing license file")
	}
}

func TestRevUUIDPartRoundTrips(t *testing.T) {
	cases := []string{"", "ab", "00000000", "deadbeef", "0123456789abcdef"}
	for _, x := range cases {
		got := revUUIDPart(revUUIDPart(x))
		if got != x {
			t.Fatalf("revUUIDPart(revUUIDPart(%q)) = %q, want %q", x, got, x)
		}
	}
}

func TestRevUUIDPartReversesByteOrder(t *testing.T) {
	if got := revUUIDPart("12345678"); got != "78563412" {
		t.Fatalf("revUUIDPart(%q) = %q, want %q", "12345678", got, "78563412")
	}
}
