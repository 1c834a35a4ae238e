package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/nodemap/internal/config"
)

func configCmd(opts *rootOptions) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if !defaults {
				var err error
				if cfg, err = opts.load(); err != nil {
					return err
				}
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Ignore the config file and environment")
	return cmd
}
