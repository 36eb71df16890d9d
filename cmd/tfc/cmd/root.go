package cmd

import (
	"log/slog"
	"os"
	"time"

	internal "github.com/ZanzyTHEbar/track-folder-changes/tfc"
	"github.com/ZanzyTHEbar/track-folder-changes/tfc/config"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   internal.DefaultAppCMDShortCut,
	Short: "Track which files and folders change under a folder",
	Long: `tfc watches a folder and keeps a tree of everything created, changed or
deleted below it since watching started. Only changed entries and their
ancestors appear in the tree.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Log.SlogLevel()
		if cmd.Flags().Changed("log-level") {
			level = config.LogConfig{Level: logLevel}.SlogLevel()
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default searches ., etc/tfc and "+internal.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
