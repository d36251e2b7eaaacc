package jobserver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"log/slog"
)

// DeployRunner pushes a finished build artifact to the serving host.
// It runs only after a successful build, with the computed output path
// appended as the final argument.
type DeployRunner struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDeployRunner returns nil when no deploy command is configured.
func NewDeployRunner(command string, timeout time.Duration, logger *slog.Logger) *DeployRunner {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DeployRunner{command: command, timeout: timeout, logger: logger}
}

// Run executes the deploy command against outputPath.
func (d *DeployRunner) Run(ctx context.Context, outputPath string) error {
	fields := strings.Fields(d.command)
	args := append(fields[1:], outputPath)

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		d.logger.Error("deploy failed", "output_path", outputPath, "error", err, "output", string(output))
		return fmt.Errorf("deploy command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	d.logger.Info("deploy completed", "output_path", outputPath)
	return nil
}
