package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// waitDelay bounds how long Run waits for output pipes after the process
// has been killed (e.g. a grandchild still holding stdout).
const waitDelay = 2 * time.Second

// ExecRunner implements domain.CommandRunner on top of os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes argv and blocks until it exits. A non-zero exit is not an
// error: it is reported through CommandResult.ExitCode. Errors are reserved
// for processes that could not be started or that overran ctx.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (domain.CommandResult, error) {
	if len(argv) == 0 {
		return domain.CommandResult{}, errors.New("empty command")
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}

	// 🛡️ No shell: argv goes straight to execve, nothing is interpolated.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := domain.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: %w", strings.Join(argv, " "), domain.ErrCommandTimeout)
		}
		return res, fmt.Errorf("%s: %w", strings.Join(argv, " "), ctxErr)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return res, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return res, nil
}

// lockedBuffer lets stdout and stderr interleave into one stream in the
// order the process wrote them.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
