package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newConfigCommand 显示当前生效的配置
func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "显示当前生效的配置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"项", "值"})
			tw.AppendRow(table.Row{"service_url", cfg.ServiceURL})
			tw.AppendRow(table.Row{"sample_fraction", cfg.SampleFraction})
			tw.AppendRow(table.Row{"debounce", cfg.Debounce()})
			tw.AppendRow(table.Row{"request_timeout", cfg.Timeout()})
			tw.AppendRow(table.Row{"target_scripts", strings.Join(cfg.TargetScripts, ", ")})
			tw.AppendRow(table.Row{"min_text_length", cfg.MinTextLength})
			tw.AppendRow(table.Row{"skip_elements", strings.Join(cfg.SkipElements, ", ")})
			tw.AppendSeparator()
			tw.AppendRow(table.Row{"server.listen", cfg.Server.Listen})
			tw.AppendRow(table.Row{"server.database", cfg.DatabasePath()})
			tw.AppendRow(table.Row{"server.provider", cfg.Server.Provider})
			tw.AppendRow(table.Row{"server.glossary", cfg.Server.Glossary})

			names := make([]string, 0, len(cfg.Server.Providers))
			for name := range cfg.Server.Providers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				pc := cfg.Server.Providers[name]
				tw.AppendRow(table.Row{
					"providers." + name,
					fmt.Sprintf("%s (model %s, system role %v, rate %d/%ds)",
						pc.APIURL, pc.Model, pc.UseSystemRole, pc.RateLimitCount, pc.RateLimitPeriodSeconds),
				})
			}
			tw.SetStyle(table.StyleLight)
			tw.Render()
			return nil
		},
	}
}
