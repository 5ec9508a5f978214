package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/voicerelay/internal/config"
	"github.com/gaspardpetit/voicerelay/internal/logx"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func versionString() string {
	return fmt.Sprintf("voicerelay version=%s sha=%s date=%s", version, buildSHA, buildDate)
}

func newRootCmd() *cobra.Command {
	var flagCfg config.RelayConfig
	flagCfg.SetDefaults()

	root := &cobra.Command{
		Use:           "voicerelay",
		Short:         "Relay text generation from Ollama and speech synthesis to browser clients",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	flagCfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP relay (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd)
			},
		},
		newSayCmd(),
		newModelsCmd(),
		newLanguagesCmd(),
		newVoicesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), versionString())
			},
		},
	)
	return root
}

// loadConfig resolves the layered configuration for cmd and applies the log level.
func loadConfig(cmd *cobra.Command) (config.RelayConfig, error) {
	if err := config.LoadDotEnv(config.GetEnv("ENV_FILE", ".env")); err != nil {
		return config.RelayConfig{}, err
	}
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return cfg, err
	}
	logx.Configure(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logx.Log.Error().Err(err).Msg("voicerelay")
		os.Exit(1)
	}
}
