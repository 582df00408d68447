// Package config loads environment-driven host configuration for vrouterd.
//
// Per-invocation behavior (username/password/NIC count/newchassis) is
// carried by cobra flags instead; this package only covers host-level
// plumbing that rarely changes between runs of the same container.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultHypervisor = "qemu-system-x86_64"
	defaultRuntimeDir  = "/"
	defaultTFTPRoot    = "/tftpboot"
	defaultBridgeName  = "int_cp"
)

// SupervisorConfig captures the host-level configuration for vrouterd.
type SupervisorConfig struct {
	HypervisorBinary string
	RuntimeDir       string
	TFTPRoot         string
	BridgeName       string
	HealthFilePath   string
}

// FromEnv loads SupervisorConfig from the environment, applying the
// opinionated defaults the appliance containers are built around.
func FromEnv() (SupervisorConfig, error) {
	cfg := SupervisorConfig{
		HypervisorBinary: getenv("VR_HYPERVISOR", defaultHypervisor),
		RuntimeDir:       expandPath(getenv("VR_RUNTIME_DIR", defaultRuntimeDir)),
		TFTPRoot:         expandPath(getenv("VR_TFTP_ROOT", defaultTFTPRoot)),
		BridgeName:       getenv("VR_BRIDGE", defaultBridgeName),
		HealthFilePath:   expandPath(getenv("VR_HEALTH_FILE", "/health")),
	}

	if strings.TrimSpace(cfg.HypervisorBinary) == "" {
		return SupervisorConfig{}, fmt.Errorf("config: hypervisor binary required")
	}
	if !filepath.IsAbs(cfg.RuntimeDir) {
		return SupervisorConfig{}, fmt.Errorf("config: runtime dir must be absolute: %s", cfg.RuntimeDir)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
