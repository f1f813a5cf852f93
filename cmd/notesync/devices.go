package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/config"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List paired devices",
	RunE:  runDevices,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <device-id>",
	Short: "Revoke a paired device",
	Long: `Revoke removes a device's credentials. Its live connections are
dropped and it must pair again to sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(revokeCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	store, err := config.NewViperStore(filepath.Join(cfg.ConfigDir(), config.ConfigFileName))
	if err != nil {
		return err
	}

	paired := store.Sync().PairedDevices
	if len(paired) == 0 {
		fmt.Println("No paired devices")
		return nil
	}

	for _, device := range paired {
		lastUsed := "never"
		if device.LastUsed > 0 {
			lastUsed = time.UnixMilli(device.LastUsed).Format("2006-01-02 15:04")
		}
		fmt.Printf("%s  %s  paired %s  last used %s\n",
			device.DeviceID,
			color.CyanString(device.DeviceName),
			time.UnixMilli(device.CreatedAt).Format("2006-01-02"),
			lastUsed)
	}
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	deviceID := args[0]

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	found := false
	for _, device := range c.PairedDevices() {
		if device.DeviceID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no paired device with id %s", deviceID)
	}

	if err := c.RevokePairing(deviceID); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", color.YellowString("Revoked:"), deviceID)
	return nil
}
