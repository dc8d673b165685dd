// Package commands runs shell commands named in a YAML allow list.
package commands

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/xiy/memory-assistant/internal/errs"
)

// Allowlist is the on-disk format:
//
//	commands:
//	  - ls
//	  - date
type Allowlist struct {
	Commands []string `yaml:"commands"`
}

// LoadAllowlist reads path. An empty file is an empty list.
func LoadAllowlist(path string) (Allowlist, error) {
	var al Allowlist
	b, err := os.ReadFile(path)
	if err != nil {
		return al, goerr.Wrap(errs.ErrInvalidConfig, "read command allowlist", goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	if err := yaml.Unmarshal(b, &al); err != nil {
		return al, goerr.Wrap(errs.ErrInvalidConfig, "parse command allowlist", goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	return al, nil
}

func (a Allowlist) Allows(command string) bool {
	for _, c := range a.Commands {
		if c == command {
			return true
		}
	}
	return false
}

// RunAllowed runs command through sh -c when it matches an allow list entry
// exactly, and returns its stdout.
func RunAllowed(ctx context.Context, command, allowlistPath string, logger *log.Logger) (string, error) {
	al, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return "", err
	}
	if !al.Allows(command) {
		return "", goerr.Wrap(errs.ErrPermissionDenied, "command is not allowed", goerr.V("command", command))
	}

	logger.Info("running allowed command", "command", command)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), goerr.Wrap(err, "command failed", goerr.V("command", command), goerr.V("stderr", stderr.String()))
	}
	return stdout.String(), nil
}
