package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync settings and recent history",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "History rows to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	settings := c.Sync().PairedDevices()
	fmt.Printf("Workspace:      %s\n", cfg.Workspace)
	fmt.Printf("Device:         %s (%s)\n", cfg.DeviceName, c.Sync().DeviceID())
	fmt.Printf("Paired devices: %d\n", len(settings))

	history, err := c.History(statusLimit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No sync history")
		return nil
	}

	fmt.Println()
	for _, entry := range history {
		outcome := color.GreenString("ok")
		if !entry.Success {
			outcome = color.RedString("failed")
		}
		fmt.Printf("%s  %-6s %-3s  %s  sent=%d received=%d conflicts=%d\n",
			entry.CompletedAt.Format("2006-01-02 15:04"),
			outcome,
			strings.ToUpper(string(entry.Transport)),
			entry.DeviceName,
			entry.SentCount, entry.ReceivedCount, entry.ConflictCount)
		for _, msg := range entry.Errors {
			fmt.Printf("    %s %s\n", color.RedString("!"), msg)
		}
	}
	return nil
}
