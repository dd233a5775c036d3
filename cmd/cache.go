package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jcdickinson/ferrisnav/internal/config"
	"github.com/spf13/cobra"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove cached rustdoc JSON downloads",
	Long: `Remove cached rustdoc JSON downloads. With --snapshots, also remove the
artifact snapshots that verify --repair restores from.`,
	Run: runClearCache,
}

var clearSnapshots bool

func init() {
	clearCacheCmd.Flags().BoolVar(&clearSnapshots, "snapshots", false, "also remove artifact snapshots")
}

func runClearCache(cmd *cobra.Command, args []string) {
	dirs := []string{config.JSONCacheDir()}
	if clearSnapshots {
		dirs = append(dirs, config.CASDir())
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("failed to clear cache", "dir", dir, "error", err)
			os.Exit(1)
		}
		fmt.Printf("removed %s\n", dir)
	}
}
