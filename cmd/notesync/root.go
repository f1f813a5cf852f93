package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/client"
	"github.com/notesync/notesync/internal/config"
	"github.com/notesync/notesync/internal/events"
)

var (
	cfg    *config.Config
	logger *events.Logger

	flagWorkspace  string
	flagDeviceName string
	flagLogLevel   string
	flagLogFormat  string
	flagLogFile    string
)

var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Peer-to-peer sync for a local Markdown workspace",
	Long: `notesync serves a Markdown note workspace to paired mobile devices
over the local network and Bluetooth LE. Notes never leave your devices;
there is no server and no account.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", ".",
		"Note workspace directory")
	rootCmd.PersistentFlags().StringVar(&flagDeviceName, "device-name", "",
		"Device name advertised to peers (default: hostname)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "",
		"Log file path (default: stderr)")
}

func initConfig() error {
	workspace, err := filepath.Abs(flagWorkspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}

	cfg = config.DefaultConfig()
	cfg.Workspace = workspace
	cfg.Log.Level = flagLogLevel
	cfg.Log.Format = flagLogFormat
	cfg.Log.File = flagLogFile
	if flagDeviceName != "" {
		cfg.DeviceName = flagDeviceName
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = events.NewLogger(&cfg.Log)
	return nil
}

func newClient() (*client.Client, error) {
	return client.New(cfg, logger)
}
