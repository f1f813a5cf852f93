package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair a new device",
	Long: `Pair starts the transports, mints a single-use PIN, and waits for a
device to redeem it. Enter the PIN on the device, or scan the printed
payload as a QR code. The PIN expires after five minutes.`,
	RunE: runPair,
}

func init() {
	rootCmd.AddCommand(pairCmd)
}

func runPair(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)

	info, err := c.GeneratePairing()
	if err != nil {
		return err
	}

	before := len(c.PairedDevices())

	fmt.Println()
	fmt.Printf("  Pairing PIN: %s\n", color.New(color.FgGreen, color.Bold).Sprint(info.PIN))
	fmt.Printf("  QR payload:  %s\n", info.QRPayload)
	fmt.Printf("  Expires at:  %s\n", time.UnixMilli(info.ExpiresAt).Format(time.Kitchen))
	fmt.Println()
	fmt.Println("Waiting for a device to pair (Ctrl+C to cancel)...")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nPairing cancelled")
			return nil
		case <-ticker.C:
			paired := c.PairedDevices()
			if len(paired) > before {
				latest := paired[len(paired)-1]
				fmt.Printf("%s %s\n", color.GreenString("Paired:"), latest.DeviceName)
				return nil
			}
			if time.Now().UnixMilli() > info.ExpiresAt {
				return fmt.Errorf("pairing PIN expired")
			}
		}
	}
}
