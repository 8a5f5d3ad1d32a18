package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Per-operation timeouts. Fast local plumbing gets the short timeout;
// anything that may touch the network gets a longer one.
const (
	timeoutLocal = 5 * time.Second
	timeoutProbe = 10 * time.Second
	timeoutFetch = 60 * time.Second
	timeoutPush  = 60 * time.Second
	timeoutPull  = 120 * time.Second
	timeoutClone = 300 * time.Second
)

// Runner executes git commands. It is the seam that lets tests substitute
// a fake for the real git binary.
type Runner interface {
	// Run executes git with the given args in dir, bounded by timeout.
	// Returns the combined trimmed output. A non-zero exit or timeout
	// returns an error along with whatever output was produced.
	Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error)
}

// ErrTimeout marks a git command that exceeded its timeout.
var ErrTimeout = errors.New("git command timed out")

// ExecRunner runs git through os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return output, fmt.Errorf("%w after %s: git %s", ErrTimeout, timeout, strings.Join(args, " "))
		}
		return output, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, output)
	}

	return output, nil
}
