// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmdtool implements the code-execution tool class: a single
// allowlisted command run in argv form, never through a shell, inside a
// throwaway per-call working directory that is always removed.
package cmdtool

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// RunCommandArgs defines the parameters for executing a command.
type RunCommandArgs struct {
	Command string   `json:"command" jsonschema:"required,description=The allowlisted command to run"`
	Args    []string `json:"args,omitempty" jsonschema:"description=Arguments passed to the command, never shell-interpreted"`
	Stdin   string   `json:"stdin,omitempty" jsonschema:"description=Data piped to the command's standard input"`
}

// Config configures the run_command tool.
type Config struct {
	// CommandAllowlist names the only commands (by base name, e.g. "git")
	// that may be executed. Required: Policy.Validate rejects an empty
	// allowlist for this class.
	CommandAllowlist []string

	// WallClock bounds a single command's total runtime.
	WallClock time.Duration

	// OutputCap truncates combined stdout+stderr past this many bytes.
	OutputCap int

	// SandboxRoot is the parent directory under which a fresh, randomly
	// named working directory is created per call and removed once the
	// call returns. Defaults to os.TempDir().
	SandboxRoot string
}

func (c *Config) setDefaults() {
	if c.WallClock <= 0 {
		c.WallClock = 30 * time.Second
	}
	if c.OutputCap <= 0 {
		c.OutputCap = 64 * 1024
	}
	if c.SandboxRoot == "" {
		c.SandboxRoot = os.TempDir()
	}
}

// NewRunCommand builds the run_command tool definition.
func NewRunCommand(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "run_command",
			Description: "Execute an allowlisted command with arguments. The command is never passed through a shell.",
			Class:       toolhost.ClassCodeExecution,
			Policy: toolhost.Policy{
				Class:            toolhost.ClassCodeExecution,
				CommandAllowlist: cfg.CommandAllowlist,
				WallClock:        cfg.WallClock,
				OutputCap:        cfg.OutputCap,
			},
		},
		func(ctx toolhost.Context, args RunCommandArgs) (map[string]any, error) {
			return runCommandImpl(ctx, cfg, args)
		},
		func(args RunCommandArgs) error {
			if strings.TrimSpace(args.Command) == "" {
				return fmt.Errorf("command cannot be empty")
			}
			if !slices.Contains(cfg.CommandAllowlist, filepath.Base(args.Command)) {
				return fmt.Errorf("command %q is not in the allowlist: %w", args.Command, toolhost.ErrPolicyDenied)
			}
			return nil
		},
	)
}

func runCommandImpl(ctx toolhost.Context, cfg Config, args RunCommandArgs) (map[string]any, error) {
	sandboxDir := filepath.Join(cfg.SandboxRoot, "swarmd-cmd-"+uuid.NewString())
	if err := os.MkdirAll(sandboxDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	defer os.RemoveAll(sandboxDir)

	cmd := exec.CommandContext(ctx, args.Command, args.Args...)
	cmd.Dir = sandboxDir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}
	if args.Stdin != "" {
		cmd.Stdin = strings.NewReader(args.Stdin)
	}

	output, runErr := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("command did not finish before its deadline: %w", ctx.Err())
	}
	truncated := false
	if len(output) > cfg.OutputCap {
		output = output[:cfg.OutputCap]
		truncated = true
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to run command: %w", runErr)
		}
	}

	return map[string]any{
		"command":   args.Command,
		"args":      args.Args,
		"output":    string(output),
		"truncated": truncated,
		"exit_code": exitCode,
		"success":   exitCode == 0,
	}, nil
}
