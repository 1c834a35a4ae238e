package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/nodemap/internal/config"
)

var version = "0.3.0"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "nodemap",
		Short: "Plot network nodes on a flat map or a rotatable globe",
		Long: Brand.Sprint("nodemap") + " draws status-coloured node markers on a Mercator map or an\n" +
			"orthographic globe, as static SVG or as live websocket sessions.",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("nodemap {{ .Version }}\n")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file (NODEMAP_* variables override it)")

	cmd.AddCommand(
		renderCmd(opts),
		serveCmd(opts),
		configCmd(opts),
	)
	return cmd
}

// load reads the config file and environment without validating, so that
// command flags can still be applied.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration:\n%w", err)
	}
	return nil
}
