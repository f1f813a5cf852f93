package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var manifestJSON bool

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the workspace note manifest",
	Long: `Manifest walks the workspace and prints each note's sync fingerprint:
path, title, update time, content hash, and size.`,
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().BoolVar(&manifestJSON, "json", false, "Output as JSON")
}

func runManifest(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	manifest, err := c.BuildManifest()
	if err != nil {
		return err
	}

	if manifestJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}

	for _, entry := range manifest {
		fmt.Printf("%-40s  %s  %8d  %s\n",
			entry.Path,
			time.UnixMilli(entry.UpdatedAt).Format("2006-01-02 15:04"),
			entry.Size,
			entry.ContentHash)
	}
	fmt.Printf("%d notes\n", len(manifest))
	return nil
}
