package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jcdickinson/ferrisnav/internal/navindex"
	"github.com/jcdickinson/ferrisnav/internal/site"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Validate every sidebar-items.js and implementors file in a docs tree",
	Long: `Load each artifact the way a browser would and validate its contents.
Sidebar entries must be (name, description) pairs; implementor fragments must
be well-formed impl headers. Files that decode but are not in canonical form
are reported as warnings.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := navindex.Options{AllowUndocumented: cfg.Check.AllowUndocumented}
		problems, err := checkTree(outputDir(args), opts)
		if err != nil {
			slog.Error("check failed", "error", err)
			os.Exit(1)
		}
		if printProblems(os.Stdout, problems) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	checkCmd.Flags().Bool("allow-undocumented", false, "report empty sidebar descriptions as warnings")
	viper.BindPFlag("check.allow_undocumented", checkCmd.Flags().Lookup("allow-undocumented"))
}

var errNoArtifacts = errors.New("no sidebar-items.js or implementors files found")

// checkTree validates every artifact under dir.
func checkTree(dir string, opts navindex.Options) ([]navindex.Problem, error) {
	artifacts, err := site.Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, errNoArtifacts)
	}

	var problems []navindex.Problem
	for _, a := range artifacts {
		data, err := site.Read(dir, a.Path)
		if err != nil {
			return nil, err
		}
		problems = append(problems, checkArtifact(a, data, opts)...)
	}
	slog.Debug("checked artifacts", "dir", dir, "count", len(artifacts), "problems", len(problems))
	return problems, nil
}

func checkArtifact(a site.Artifact, data []byte, opts navindex.Options) []navindex.Problem {
	var (
		problems  []navindex.Problem
		canonical []byte
		err       error
	)
	switch a.Kind {
	case site.KindSidebar:
		var s *navindex.Sidebar
		if s, err = navindex.DecodeSidebar(data); err == nil {
			problems = navindex.ValidateSidebar(s, opts)
			canonical, err = navindex.SidebarBytes(s)
		}
	case site.KindImplementors:
		var im *navindex.Implementors
		if im, err = navindex.DecodeImplementors(data); err == nil {
			problems = navindex.ValidateImplementors(im)
			canonical, err = navindex.ImplementorsBytes(im)
		}
	}
	if err != nil {
		return []navindex.Problem{{Where: a.Path, Message: err.Error()}}
	}

	for i := range problems {
		problems[i].Where = a.Path + ": " + problems[i].Where
	}
	if !bytes.Equal(canonical, data) {
		problems = append(problems, navindex.Problem{
			Where:   a.Path,
			Message: "not in canonical form; rebuild to normalize",
			Warning: true,
		})
	}
	return problems
}

// printProblems writes one line per problem and returns the error count.
func printProblems(w io.Writer, problems []navindex.Problem) int {
	errs := 0
	for _, p := range problems {
		fmt.Fprintln(w, p)
		if !p.Warning {
			errs++
		}
	}
	if errs == 0 {
		fmt.Fprintf(w, "ok (%d warnings)\n", len(problems))
	}
	return errs
}
