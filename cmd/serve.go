package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jcdickinson/ferrisnav/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve a docs tree and push artifact changes to connected pages",
	Long: `Serve the docs tree over HTTP. Pages that connect to /live receive every
sidebar-items.js or implementors change as it is written; a change made
while no page is connected is delivered to the next one.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from serve.addr)")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) {
	dir := outputDir(args)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		slog.Error("docs directory not found", "dir", dir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("serving docs", "dir", dir, "addr", cfg.Serve.Addr)
	if err := server.New(dir, ledgerFile{}).Run(ctx, cfg.Serve.Addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
