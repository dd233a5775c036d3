package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/config"
	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/site"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [crate ...]",
	Short: "Compare the docs tree against the recorded builds",
	Long: `Hash every artifact recorded by the latest build of each crate and report
files that are missing or were modified since. With --repair, restore them
from the snapshot store.`,
	Run: runVerify,
}

var verifyRepair bool

func init() {
	verifyCmd.Flags().BoolVar(&verifyRepair, "repair", false, "restore missing or modified artifacts from snapshots")
}

type artifactState string

const (
	stateMissing  artifactState = "missing"
	stateModified artifactState = "modified"
	stateRepaired artifactState = "repaired"
)

type verifyFinding struct {
	Crate string
	Path  string
	State artifactState
}

type buildLedger interface {
	ListBuilds(latestOnly bool) ([]db.Build, error)
	Artifacts(buildID int) ([]db.Artifact, error)
}

func runVerify(cmd *cobra.Command, args []string) {
	ledger, err := openLedger()
	if err != nil {
		slog.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	w := &site.Writer{Dir: cfg.Output.Dir}
	store := &cas.Store{Dir: config.CASDir()}
	findings, err := verifyTree(w, ledger, store, args, verifyRepair)
	printFindings(os.Stdout, findings)
	if err != nil {
		slog.Error("verify failed", "error", err)
		ledger.Close()
		os.Exit(1)
	}
	for _, f := range findings {
		if f.State != stateRepaired {
			ledger.Close()
			os.Exit(1)
		}
	}
	if len(findings) == 0 {
		fmt.Println("ok")
	}
}

// expectedArtifact is the hash a path should have and the crate whose build
// wrote it last.
type expectedArtifact struct {
	crate string
	hash  string
}

// expectedHashes maps each path a crate's latest build still produces to
// its expected hash. Every build records each file it writes, so the newest
// build in the whole history that recorded a path holds the hash of its
// last write. For shared implementors files that can be another crate's
// build, or an older build of a crate that has since withdrawn from it.
func expectedHashes(ledger buildLedger) (map[string]expectedArtifact, []string, error) {
	latest, err := ledger.ListBuilds(true)
	if err != nil {
		return nil, nil, err
	}
	live := make(map[string]bool)
	for _, b := range latest {
		artifacts, err := ledger.Artifacts(b.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range artifacts {
			live[a.Path] = true
		}
	}

	history, err := ledger.ListBuilds(false)
	if err != nil {
		return nil, nil, err
	}
	expected := make(map[string]expectedArtifact, len(live))
	var order []string
	for _, b := range history {
		if len(expected) == len(live) {
			break
		}
		artifacts, err := ledger.Artifacts(b.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range artifacts {
			if _, seen := expected[a.Path]; seen || !live[a.Path] {
				continue
			}
			expected[a.Path] = expectedArtifact{crate: b.Crate, hash: a.Hash}
			order = append(order, a.Path)
		}
	}
	return expected, order, nil
}

func verifyTree(w *site.Writer, ledger buildLedger, store *cas.Store, crates []string, repair bool) ([]verifyFinding, error) {
	expected, order, err := expectedHashes(ledger)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(crates))
	for _, c := range crates {
		want[c] = true
	}

	var (
		findings []verifyFinding
		errs     []error
	)
	for _, rel := range order {
		exp := expected[rel]
		if len(want) > 0 && !want[exp.crate] {
			continue
		}

		state, err := artifactStatus(w.Dir, rel, exp.hash)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if state == "" {
			continue
		}
		if repair {
			if err := restoreArtifact(w, store, rel, exp.hash); err != nil {
				errs = append(errs, err)
			} else {
				state = stateRepaired
			}
		}
		findings = append(findings, verifyFinding{Crate: exp.crate, Path: rel, State: state})
	}
	return findings, errors.Join(errs...)
}

// artifactStatus returns "" when the file on disk matches hash.
func artifactStatus(dir, rel, hash string) (artifactState, error) {
	data, err := site.Read(dir, rel)
	if errors.Is(err, fs.ErrNotExist) {
		return stateMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	if cas.Hash(data) != hash {
		return stateModified, nil
	}
	return "", nil
}

func restoreArtifact(w *site.Writer, store *cas.Store, rel, hash string) error {
	data, err := store.Read(hash)
	if err != nil {
		return fmt.Errorf("restoring %s: %w", rel, err)
	}
	if err := w.Restore(rel, data); err != nil {
		return fmt.Errorf("restoring %s: %w", rel, err)
	}
	slog.Info("restored artifact", "path", rel, "hash", hash)
	return nil
}

func printFindings(w io.Writer, findings []verifyFinding) {
	for _, f := range findings {
		fmt.Fprintf(w, "%-9s %s (%s)\n", f.State, f.Path, f.Crate)
	}
}
