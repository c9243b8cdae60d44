package security

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SandboxPolicy defines when shell commands run inside a container instead
// of directly on the host.
type SandboxPolicy struct {
	// Enabled activates sandboxing. When false, commands run on the host
	// (still inside the boundary root, with a sanitized environment).
	Enabled bool `yaml:"enabled"`
}

// ResourceLimits defines resource constraints for sandboxed execution.
type ResourceLimits struct {
	// CPUShares is the relative CPU weight (Docker --cpu-shares).
	CPUShares int `yaml:"cpu_shares"`

	// MemoryMB is the memory limit in megabytes.
	MemoryMB int `yaml:"memory_mb"`

	// DiskMB is the tmpfs size limit in megabytes.
	DiskMB int `yaml:"disk_mb"`

	// Timeout is the maximum execution duration.
	Timeout time.Duration `yaml:"timeout"`
}

// resourceLimitsDefaults returns sane defaults for sandbox limits.
func resourceLimitsDefaults() ResourceLimits {
	return ResourceLimits{
		CPUShares: 512,
		MemoryMB:  256,
		DiskMB:    100,
		Timeout:   30 * time.Second,
	}
}

// SandboxExecutor wraps command execution in a Docker container when
// sandboxing is required. If Docker is not available, it returns an error
// rather than running unsandboxed (fail-closed).
type SandboxExecutor struct {
	policy SandboxPolicy
	limits ResourceLimits
	image  string
}

// NewSandboxExecutor creates a sandbox executor with the given policy and
// limits. Zero-value limits are replaced with defaults.
func NewSandboxExecutor(policy SandboxPolicy, limits ResourceLimits, image string) *SandboxExecutor {
	defaults := resourceLimitsDefaults()
	if limits.CPUShares <= 0 {
		limits.CPUShares = defaults.CPUShares
	}
	if limits.MemoryMB <= 0 {
		limits.MemoryMB = defaults.MemoryMB
	}
	if limits.DiskMB <= 0 {
		limits.DiskMB = defaults.DiskMB
	}
	if limits.Timeout <= 0 {
		limits.Timeout = defaults.Timeout
	}
	if image == "" {
		image = "alpine:3.19"
	}

	return &SandboxExecutor{policy: policy, limits: limits, image: image}
}

// Enabled reports whether the sandbox policy is active.
func (s *SandboxExecutor) Enabled() bool {
	return s.policy.Enabled
}

// Execute runs a command in a sandboxed Docker container with the boundary
// root mounted read-only. Returns the combined stdout/stderr output.
func (s *SandboxExecutor) Execute(ctx context.Context, command string, workdir string) ([]byte, error) {
	if !s.policy.Enabled {
		return nil, fmt.Errorf("sandbox: policy not enabled")
	}

	if s.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Timeout)
		defer cancel()
	}

	if workdir != "" {
		cleaned := filepath.Clean(workdir)
		if strings.Contains(cleaned, ":") {
			return nil, fmt.Errorf("sandbox: workdir contains invalid character: %q", workdir)
		}
	}

	args := []string{
		"run", "--rm",
		"--read-only",
		"--network=none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges:true",
		"--user", "65534:65534",
		"--pids-limit", "256",
		"--cpu-shares", strconv.Itoa(s.limits.CPUShares),
		"--memory", strconv.Itoa(s.limits.MemoryMB) + "m",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=" + strconv.Itoa(s.limits.DiskMB) + "m",
	}

	if workdir != "" {
		args = append(args, "-v", workdir+":/workspace:ro", "-w", "/workspace")
	}

	args = append(args, s.image, "sh", "-c", command)

	//nolint:gosec // args are constructed programmatically from validated input.
	cmd := exec.CommandContext(ctx, "docker", args...)
	return cmd.CombinedOutput()
}

// IsDockerAvailable checks if the docker CLI is available on PATH.
func IsDockerAvailable() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}
