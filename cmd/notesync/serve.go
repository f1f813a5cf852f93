package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/events"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workspace to paired devices",
	Long: `Serve starts the enabled transports and keeps the workspace available
to paired devices until interrupted. Devices connect, pull a manifest,
exchange changed notes, and disconnect on their own schedule.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)

	fmt.Printf("Serving workspace %s as %s\n",
		color.CyanString(cfg.Workspace), color.CyanString(cfg.DeviceName))
	fmt.Println("Press Ctrl+C to stop")

	ch, cancel := c.Events().Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down")
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev events.Event) {
	stamp := ev.Timestamp.Format("15:04:05")

	switch ev.Type {
	case events.EventDeviceConnected:
		if ev.Device != nil {
			fmt.Printf("%s %s %s (%s)\n", stamp,
				color.GreenString("connected"), ev.Device.Name, ev.Device.Transport)
		}
	case events.EventDeviceDisconnected:
		fmt.Printf("%s %s %s\n", stamp, color.YellowString("disconnected"), ev.DeviceID)
	case events.EventStatusChanged:
		fmt.Printf("%s status: %s\n", stamp, ev.Status)
	case events.EventSyncComplete:
		if ev.Result != nil {
			fmt.Printf("%s %s sent=%d received=%d conflicts=%d\n", stamp,
				color.GreenString("sync complete"),
				ev.Result.SentCount, ev.Result.ReceivedCount, ev.Result.ConflictCount)
		}
	}
}
