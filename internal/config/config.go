// Package config defines the orchestrator's recognized configuration and
// validates it at startup, mirroring the excluded environment-loading
// collaborator's directory/file existence checks.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the orchestrator's full recognized configuration. Field tags
// are Kong struct tags (env + help), consumed directly by cmd/venvorchd's
// CLI — this struct is the single source of truth for every config name.
type Config struct {
	SecretKey string `env:"SECRET_KEY" help:"Opaque key reserved for future request signing." required:""`
	Debug     bool   `env:"DEBUG" help:"Enable debug-level stdout logging."`

	HostAPI string `env:"HOST_API" help:"Address the HTTP control plane binds to." default:"0.0.0.0"`
	PortAPI int    `env:"PORT_API" help:"Port the HTTP control plane binds to." required:""`

	LibvirtClient   string `env:"LIBVIRT_CLIENT" help:"Hypervisor connection URI." required:""`
	VMDefaultBridge string `env:"VM_DEFAULT_BRIDGE" help:"Fallback bridge device for VM networking." required:""`

	EnvPortsBegin int `env:"ENV_PORTS_BEGIN" help:"First port in the allocatable range (inclusive)." required:""`
	EnvPortsEnd   int `env:"ENV_PORTS_END" help:"Last port in the allocatable range (exclusive)." required:""`

	VMOverlaysPath   string `env:"VM_OVERLAYS_PATH" help:"Directory holding VM overlay disks." required:""`
	VMTemplatesPath  string `env:"VM_TEMPLATES_PATH" help:"Directory holding VM domain XML templates." required:""`
	VMBaseImagesPath string `env:"VM_BASE_IMAGES_PATH" help:"Directory holding read-only VM base images." required:""`

	LogFilePath string `env:"LOG_FILE_PATH" help:"Path to the rotated log file used outside debug mode." required:""`

	EnvBootPollIntervalSeconds int `env:"ENV_BOOT_POLL_INTERVAL" help:"Seconds between VM boot-watch polls." required:""`
	VMBootTimeoutSeconds       int `env:"VM_BOOT_TIMEOUT" help:"Seconds before a still-booting VM is destroyed." required:""`

	ClusterTTLSeconds                 int `env:"CLUSTER_TTL_SECONDS" help:"Default session time-to-live in seconds." required:""`
	ClusterTTLAllowExtendAfterSeconds int `env:"CLUSTER_TTL_ALLOW_EXTEND_TIME_SECONDS" help:"Minimum session age before extend_ttl is allowed; 0 disables the gate."`
	ClusterTTLExtendSeconds           int `env:"CLUSTER_TTL_EXTEND_SECONDS" help:"Seconds added to a session's TTL by extend_ttl."`
	ClusterTTLPollSeconds             int `env:"CLUSTER_TTL_POLL_SECONDS" help:"Seconds between TTL sweeper passes." required:""`
}

// EnvBootPollInterval returns the boot-watch poll interval as a Duration.
func (c Config) EnvBootPollInterval() time.Duration {
	return time.Duration(c.EnvBootPollIntervalSeconds) * time.Second
}

// VMBootTimeout returns the VM boot timeout as a Duration.
func (c Config) VMBootTimeout() time.Duration {
	return time.Duration(c.VMBootTimeoutSeconds) * time.Second
}

// ClusterTTL returns the default session TTL as a Duration.
func (c Config) ClusterTTL() time.Duration {
	return time.Duration(c.ClusterTTLSeconds) * time.Second
}

// ClusterTTLAllowExtendAfter returns the extend-ttl gate duration.
func (c Config) ClusterTTLAllowExtendAfter() time.Duration {
	return time.Duration(c.ClusterTTLAllowExtendAfterSeconds) * time.Second
}

// ClusterTTLExtend returns the per-call TTL extension duration.
func (c Config) ClusterTTLExtend() time.Duration {
	return time.Duration(c.ClusterTTLExtendSeconds) * time.Second
}

// ClusterTTLPoll returns the sweeper poll interval.
func (c Config) ClusterTTLPoll() time.Duration {
	return time.Duration(c.ClusterTTLPollSeconds) * time.Second
}

// Validate checks the directory and file-parent-directory requirements that
// Kong's struct tags cannot express: VM_OVERLAYS_PATH, VM_TEMPLATES_PATH,
// and VM_BASE_IMAGES_PATH must exist as directories, and LOG_FILE_PATH's
// parent directory must exist (the file itself need not, since logging
// creates it on first write).
func (c Config) Validate() error {
	var problems []string

	for _, dir := range []struct {
		name, path string
	}{
		{"VM_OVERLAYS_PATH", c.VMOverlaysPath},
		{"VM_TEMPLATES_PATH", c.VMTemplatesPath},
		{"VM_BASE_IMAGES_PATH", c.VMBaseImagesPath},
	} {
		info, err := os.Stat(dir.path)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s (%s) does not exist", dir.name, dir.path))
		case !info.IsDir():
			problems = append(problems, fmt.Sprintf("%s (%s) is not a directory", dir.name, dir.path))
		}
	}

	if c.LogFilePath != "" {
		parent := parentDir(c.LogFilePath)
		if info, err := os.Stat(parent); err != nil || !info.IsDir() {
			problems = append(problems, fmt.Sprintf("LOG_FILE_PATH's parent directory (%s) does not exist", parent))
		}
	}

	if c.EnvPortsBegin >= c.EnvPortsEnd {
		problems = append(problems, fmt.Sprintf("ENV_PORTS_BEGIN (%d) must be less than ENV_PORTS_END (%d)", c.EnvPortsBegin, c.EnvPortsEnd))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return path[:idx]
}
