// Command modes1090 decodes Mode S and ADS-B replies from one or more SDR
// sample sources and forwards the records to the configured sinks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/banshee-data/modes1090/internal/config"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/version"
)

func newRootCommand() *cobra.Command {
	var (
		cfgPath string
		flags   overrides
	)

	root := &cobra.Command{
		Use:   "modes1090",
		Short: "Decode Mode S/ADS-B from SDR samples and publish the frames",
		Example: `  modes1090 --address 192.168.1.20:1234 --file-sink frames.bin.zst
  modes1090 --config /etc/modes1090/receiver.yaml`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfg, err := loadConfig(cfgPath, flags, changed)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			monitoring.Logf("[Main] modes1090 %s", version.String())

			sup := &supervisor{
				load: func() (*config.ReceiverConfig, error) { return loadConfig(cfgPath, flags, changed) },
			}
			if cfgPath != "" {
				sup.watcher = config.NewConfigWatcher(cfgPath)
			}
			err = sup.Run(ctx, cfg)
			monitoring.Logf("[Main] shutdown complete")
			return err
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", "", "Receiver config file (.json, .yaml or .toml); reloaded on change")
	flags.register(root.Flags())
	return root
}

// loadConfig reads path when set, applies the changed flags on top and
// validates the result.
func loadConfig(path string, flags overrides, changed map[string]bool) (*config.ReceiverConfig, error) {
	cfg := config.EmptyReceiverConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	flags.apply(cfg, changed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
