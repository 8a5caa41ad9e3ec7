package nlm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout reports that the external command hit its wall-clock limit.
var ErrTimeout = errors.New("command timed out")

// Result captures one invocation of the external notebook CLI.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) CombinedOutput() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Run executes the binary with a wall-clock timeout. A zero timeout means
// no limit. On timeout the partial output is still returned alongside
// ErrTimeout so callers can log what the command managed to print.
func Run(ctx context.Context, binary string, args []string, timeout time.Duration) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		return res, fmt.Errorf("%s %s after %s: %w", binary, strings.Join(args, " "), timeout, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", binary, err)
	}
	res.ExitCode = 0
	return res, nil
}

// LookPath reports whether the binary resolves on PATH.
func LookPath(binary string) error {
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("binary %q not found on PATH: %w", binary, err)
	}
	return nil
}

// Classifier sorts CLI output into auth and transient-network failures by
// case-insensitive substring match. The sets are plain data so callers can
// extend them for new CLI builds without touching this package.
type Classifier struct {
	AuthHints      []string
	TransientHints []string
}

// DefaultClassifier returns the substrings observed across known CLI
// versions. The slices are fresh copies, safe to append to.
func DefaultClassifier() Classifier {
	return Classifier{
		AuthHints: []string{
			"no authentication found",
			"login required",
			"not logged in",
			"auth expired",
			"authentication expired",
			"unauthorized",
			"401",
		},
		TransientHints: []string{
			"connection reset",
			"connection refused",
			"timed out",
			"timeout",
			"temporarily unavailable",
			"tls handshake",
			"eof",
			"502",
			"503",
			"504",
		},
	}
}

// IsAuthError reports whether output looks like an expired or missing login.
func (c Classifier) IsAuthError(output string) bool {
	return containsAnyHint(output, c.AuthHints)
}

// IsTransientError reports whether output looks like a retryable network
// failure rather than a semantic one.
func (c Classifier) IsTransientError(output string) bool {
	return containsAnyHint(output, c.TransientHints)
}

// IsAuthError matches against the default hint set.
func IsAuthError(output string) bool {
	return DefaultClassifier().IsAuthError(output)
}

// IsTransientError matches against the default hint set.
func IsTransientError(output string) bool {
	return DefaultClassifier().IsTransientError(output)
}

func containsAnyHint(output string, hints []string) bool {
	lower := strings.ToLower(output)
	for _, hint := range hints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
