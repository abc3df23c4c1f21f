package extractor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// ErrNotInstalled is returned when no way of invoking the extractor could be
// found on this host.
var ErrNotInstalled = errors.New("gallery-dl is not installed")

// resolution probes must answer fast; a hanging interpreter counts as absent
const probeTimeout = 2 * time.Second

// Command is a resolved way to invoke the extractor.
type Command struct {
	Name string
	Args []string
}

// candidates in preference order: native binary first, then module
// invocations through an interpreter.
var candidates = []Command{
	{Name: "gallery-dl"},
	{Name: "python3", Args: []string{"-m", "gallery_dl"}},
	{Name: "python", Args: []string{"-m", "gallery_dl"}},
}

// Resolve finds the first invocation whose `--version` probe exits zero
// within the probe timeout. An explicit override skips probing.
func Resolve(override string) (*Command, error) {
	if override != "" {
		return &Command{Name: override}, nil
	}

	for _, candidate := range candidates {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		args := append(append([]string{}, candidate.Args...), "--version")
		err := exec.CommandContext(ctx, candidate.Name, args...).Run()
		cancel()
		if err == nil {
			slog.Debug("extractor resolved", "command", candidate.Name, "args", candidate.Args)
			c := candidate
			return &c, nil
		}
	}
	return nil, ErrNotInstalled
}

// build returns an exec.Cmd for the resolved command with extra arguments.
func (c *Command) build(ctx context.Context, extra ...string) *exec.Cmd {
	args := append(append([]string{}, c.Args...), extra...)
	return exec.CommandContext(ctx, c.Name, args...)
}
