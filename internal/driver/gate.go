package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrBorrowCheck marks a tree rejected by the ownership checker. Other
// gate errors mean the checker itself could not run.
var ErrBorrowCheck = errors.New("borrow check failed")

// BorrowGate is the external ownership checker. Lowering only starts
// once the gate has accepted the tree.
type BorrowGate interface {
	Check(ctx context.Context, path string, tree []byte) error
}

// GateFunc adapts a function to BorrowGate.
type GateFunc func(ctx context.Context, path string, tree []byte) error

func (f GateFunc) Check(ctx context.Context, path string, tree []byte) error {
	return f(ctx, path, tree)
}

// CommandGate runs an external checker with the tree path as its last
// argument and the tree on stdin. Exit status 0 accepts the tree; any
// other status rejects it with the checker's stderr as the reason.
type CommandGate struct {
	Argv []string
}

func (g CommandGate) Check(ctx context.Context, path string, tree []byte) error {
	if len(g.Argv) == 0 {
		return nil
	}
	args := append(append([]string(nil), g.Argv[1:]...), path)
	// #nosec G204 -- the checker command comes from the user's own config or flags
	cmd := exec.CommandContext(ctx, g.Argv[0], args...)
	cmd.Stdin = bytes.NewReader(tree)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = exit.String()
		}
		return fmt.Errorf("%w: %s", ErrBorrowCheck, reason)
	}
	return fmt.Errorf("borrow checker %s: %w", g.Argv[0], err)
}
