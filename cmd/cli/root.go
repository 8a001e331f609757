package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/price-aggregator/internal/app"
	"github.com/user/price-aggregator/internal/entity"
	"github.com/user/price-aggregator/pkg/config"
	"github.com/user/price-aggregator/pkg/logger"
	"github.com/user/price-aggregator/pkg/metrics"
)

// buildFunc wires the service; tests replace it with a fake.
type buildFunc func(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app.App, error)

func defaultBuild(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, metrics.New(prometheus.NewRegistry()), log)
}

type cli struct {
	cfg   *config.Config
	log   *zap.Logger
	build buildFunc
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(defaultBuild)
}

func newRootCmdWith(build buildFunc) *cobra.Command {
	c := &cli{build: build}
	root := &cobra.Command{
		Use:           "price-aggregator",
		Short:         "Compare product prices across Peruvian supermarkets",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return eris.Wrap(err, "load config")
			}
			c.cfg = cfg
			// Logs go to stderr so stdout stays machine-readable.
			log, err := logger.New(cfg.LogLevel, "console")
			if err != nil {
				return eris.Wrap(err, "init logger")
			}
			c.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.AddCommand(c.searchCmd(), c.sourcesCmd())
	return root
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		source string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search every source (or one) and print the merged result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit == 0 {
				limit = c.cfg.DefaultLimit
			}
			result, err := a.Search.Search(cmd.Context(), entity.SearchRequest{
				Term:           args[0],
				LimitPerSource: limit,
				Source:         source,
			})
			if err != nil {
				return eris.Wrap(err, "search")
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "restrict the search to one source")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum products per source (default DEFAULT_LIMIT)")
	return cmd
}

func (c *cli) sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context(), c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tSTRATEGY")
			for _, s := range a.Search.Sources() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Label(), s.Strategy)
			}
			return tw.Flush()
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
