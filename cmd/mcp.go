package cmd

import (
	"github.com/jcdickinson/ferrisnav/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server over stdio, answering from the build ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcp.NewServer(ledgerFile{}, version).Run()
	},
}
