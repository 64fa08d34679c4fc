package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const DefaultCommandTimeout = 20 * time.Second

// NginxAdapter implements domain.ProxyController by shelling out to the
// configured syntax check and reload commands. Both are fixed at startup and
// take no per-call arguments.
type NginxAdapter struct {
	runner     domain.CommandRunner
	testArgv   []string
	reloadArgv []string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewNginxAdapter splits the command lines once so a malformed value fails at
// boot rather than on the first apply.
func NewNginxAdapter(runner domain.CommandRunner, testCmd, reloadCmd string, timeout time.Duration, logger *slog.Logger) (*NginxAdapter, error) {
	testArgv, err := splitCommand(testCmd)
	if err != nil {
		return nil, fmt.Errorf("invalid test command: %w", err)
	}
	reloadArgv, err := splitCommand(reloadCmd)
	if err != nil {
		return nil, fmt.Errorf("invalid reload command: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &NginxAdapter{
		runner:     runner,
		testArgv:   testArgv,
		reloadArgv: reloadArgv,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

func (a *NginxAdapter) Test(ctx context.Context) (domain.CommandResult, error) {
	return a.run(ctx, "test", a.testArgv)
}

func (a *NginxAdapter) Reload(ctx context.Context) (domain.CommandResult, error) {
	return a.run(ctx, "reload", a.reloadArgv)
}

func (a *NginxAdapter) run(ctx context.Context, step string, argv []string) (domain.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	res, err := a.runner.Run(ctx, argv)
	a.logger.Debug("Proxy command finished",
		slog.String("step", step),
		slog.Any("argv", argv),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("took", time.Since(start)),
	)
	return res, err
}

func splitCommand(line string) ([]string, error) {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return argv, nil
}
