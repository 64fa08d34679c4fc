package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

// errNotApplied makes the process exit non-zero after the result was printed.
var errNotApplied = errors.New("configuration was not applied")

func newBlocksCmd(e *engine) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "List the server blocks in the site file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := e.proxy.ListBlocks(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PORT\tSERVER NAME\tMAX BODY\tSERVICE")
			for _, b := range blocks {
				service := b.Service
				if service == "" {
					service = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ProxyPort, b.ServerName, b.ClientMaxBodySize, service)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(e *engine) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current site file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := e.proxy.GetCurrentConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			return nil
		},
	}
}

type mappingFlags struct {
	service   string
	subdomain string
	port      string
	size      string
}

func (f *mappingFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.service, "service", "", "service name written into the block tag")
	cmd.Flags().StringVar(&f.subdomain, "subdomain", "", "subdomain label (empty removes the block)")
	cmd.Flags().StringVar(&f.port, "port", "", "local port the block proxies to")
	cmd.Flags().StringVar(&f.size, "max-body-size", "", "client_max_body_size (default from DEFAULT_CLIENT_MAX_BODY_SIZE)")
	_ = cmd.MarkFlagRequired("port")
}

func newRenderCmd(e *engine) *cobra.Command {
	var f mappingFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the canonical server block for a mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.subdomain == "" {
				return errors.New("--subdomain is required")
			}
			if err := nginx.ValidateSubdomain(f.subdomain); err != nil {
				return err
			}
			if err := nginx.ValidatePort(f.port); err != nil {
				return err
			}
			size := f.size
			if size == "" {
				size = e.cfg.DefaultClientMaxBodySize
			}
			if err := nginx.ValidateBodySize(size); err != nil {
				return err
			}

			r := nginx.NewRenderer(e.cfg.BaseDomain, e.cfg.NginxTLSSnippet)
			fmt.Fprintln(cmd.OutOrStdout(), r.Render(f.service, f.subdomain, f.port, size))
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func newReconcileCmd(e *engine) *cobra.Command {
	var f mappingFlags
	var matchPort string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Dry run: print the site file as it would look after a mapping change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := e.pipeline.Current()
			if err != nil {
				return err
			}

			if matchPort == "" {
				matchPort = f.port
			}
			reconciler := nginx.NewReconciler(
				nginx.NewRenderer(e.cfg.BaseDomain, e.cfg.NginxTLSSnippet),
				e.cfg.DefaultClientMaxBodySize,
			)
			res, err := reconciler.Reconcile(current, matchPort, &domain.DesiredState{
				Service:           f.service,
				Subdomain:         f.subdomain,
				Port:              f.port,
				ClientMaxBodySize: f.size,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "action: %s, changed: %t\n", res.Action, res.Changed)
			fmt.Fprint(cmd.OutOrStdout(), res.Content)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&matchPort, "match-port", "", "port the existing block is correlated on (default --port)")
	return cmd
}

func newMapCmd(e *engine) *cobra.Command {
	var f mappingFlags
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Reconcile one mapping and push it through the apply pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.service == "" {
				return errors.New("--service is required")
			}
			subdomain := f.subdomain
			res, err := e.proxy.ReconcileAndApply(cmd.Context(), f.service, &subdomain, f.port, f.size)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	f.bind(cmd)
	return cmd
}

func newApplyCmd(e *engine) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file>",
		Short: "Replace the site file with the given file through the apply pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The candidate lives next to the operator, not in the managed tree.
			data, err := afero.ReadFile(afero.NewOsFs(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			res, err := e.proxy.ApplyRawConfig(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}

func newBackupsCmd(e *engine) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backups of the site file, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := e.proxy.ListBackups(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func newRestoreCmd(e *engine) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Put a backup back through the apply pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.proxy.RestoreBackup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}

func printResult(cmd *cobra.Command, res domain.ApplyResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s\n", res.Status)
	if res.Backup != "" {
		fmt.Fprintf(out, "backup: %s\n", res.Backup)
	}
	if res.Reason != "" {
		fmt.Fprintf(out, "reason:\n%s\n", res.Reason)
	}

	switch res.Status {
	case domain.ApplyApplied, domain.ApplyUnchanged:
		return nil
	}
	return errNotApplied
}
