package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/jcdickinson/ferrisnav/internal/rpc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recorded builds",
	Run:   runStatus,
}

var (
	statusJSON bool
	statusAll  bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "include superseded builds")
}

func runStatus(cmd *cobra.Command, args []string) {
	builds, err := ledgerFile{}.ListBuilds(!statusAll)
	if err != nil {
		slog.Error("failed to list builds", "error", err)
		os.Exit(1)
	}
	resp := rpc.StatusResponse{OutputDir: cfg.Output.Dir, Builds: rpc.BuildStatuses(builds)}
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}
	printStatus(os.Stdout, resp)
}

func printStatus(w io.Writer, resp rpc.StatusResponse) {
	if len(resp.Builds) == 0 {
		fmt.Fprintln(w, "no builds recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CRATE\tVERSION\tARTIFACTS\tBUILT\tINPUT")
	for _, b := range resp.Builds {
		input := b.InputHash
		if len(input) > 12 {
			input = input[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", b.Crate, b.Version, b.Artifacts, b.BuiltAt.Local().Format("2006-01-02 15:04:05"), input)
	}
	tw.Flush()
}
