package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/iiitkota/dockpanel/api/internal/adapters"
	"github.com/iiitkota/dockpanel/api/internal/config"
	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/core/services"
	"github.com/iiitkota/dockpanel/api/internal/logging"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

// engine is everything a subcommand needs. Tests build one over a memory fs.
type engine struct {
	cfg      *config.Config
	out      io.Writer
	pipeline *nginx.Pipeline
	proxy    *services.ProxyService
}

func newEngine(cfg *config.Config, fs afero.Fs, ctl domain.ProxyController, logger *slog.Logger, out io.Writer) *engine {
	pipeline := nginx.NewPipeline(fs, cfg.NginxConfigPath, cfg.NginxBackupDir, ctl, nginx.WithLogger(logger))
	reconciler := nginx.NewReconciler(
		nginx.NewRenderer(cfg.BaseDomain, cfg.NginxTLSSnippet),
		cfg.DefaultClientMaxBodySize,
	)
	return &engine{
		cfg:      cfg,
		out:      out,
		pipeline: pipeline,
		// No service repository: the operator names the port explicitly.
		proxy: services.NewProxyService(nil, reconciler, pipeline, nil, logger),
	}
}

func main() {
	cfg, err := config.ParseEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	// Progress goes to stderr so stdout stays pipeable.
	log, err := logging.New(logging.Options{Level: cfg.LogLevel}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctl, err := adapters.NewNginxAdapter(
		adapters.NewExecRunner(),
		cfg.NginxTestCmd,
		cfg.NginxReloadCmd,
		cfg.NginxCommandTimeout,
		log.Logger,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	root := newRootCmd(newEngine(cfg, afero.NewOsFs(), ctl, log.Logger, os.Stdout))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(e *engine) *cobra.Command {
	root := &cobra.Command{
		Use:   "proxyctl",
		Short: "Inspect and edit the DockPanel Nginx site file",
		Long: `proxyctl works on the managed Nginx site file of this host through the same
parser, reconciler and guarded apply pipeline as the panel API.

Every write is backed up, checked with the configured test command and rolled
back if the check fails.`,
		SilenceUsage: true,
	}
	root.SetOut(e.out)

	root.AddCommand(
		newBlocksCmd(e),
		newShowCmd(e),
		newRenderCmd(e),
		newReconcileCmd(e),
		newMapCmd(e),
		newApplyCmd(e),
		newBackupsCmd(e),
		newRestoreCmd(e),
	)
	return root
}
