package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/config"
	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/docs"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
	"github.com/jcdickinson/ferrisnav/internal/site"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var buildCmd = &cobra.Command{
	Use:   "build [crate[@version] ...]",
	Short: "Generate sidebar-items.js and implementors files",
	Long: `Fetch rustdoc JSON from docs.rs (or read local files), generate the sidebar
and implementors indexes, write them under the output directory and record
the build. Version defaults to "latest".`,
	Example: `  ferrisnav build clippy@0.0.104
  ferrisnav build serde serde_json --jobs 8
  ferrisnav build --json target/doc/mycrate.json --out target/doc`,
	Run: runBuild,
}

var (
	buildJSONFiles []string
	buildJobs      int
	buildNoCache   bool
)

func init() {
	buildCmd.Flags().StringSliceVar(&buildJSONFiles, "json", nil, "local rustdoc JSON file (repeatable)")
	buildCmd.Flags().IntVar(&buildJobs, "jobs", 0, "crates built in parallel (default from build.jobs)")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "always download, ignoring the JSON cache")
}

// buildSource is one crate to build: a docs.rs name and version, or a
// local rustdoc JSON file.
type buildSource struct {
	Name    string
	Version string
	File    string
}

func (s buildSource) String() string {
	if s.File != "" {
		return s.File
	}
	if s.Version == "" {
		return s.Name
	}
	return s.Name + "@" + s.Version
}

func parseSources(args, files []string) ([]buildSource, error) {
	var sources []buildSource
	for _, arg := range args {
		name, version, _ := strings.Cut(arg, "@")
		if name == "" {
			return nil, fmt.Errorf("invalid crate argument %q", arg)
		}
		sources = append(sources, buildSource{Name: name, Version: version})
	}
	for _, f := range files {
		sources = append(sources, buildSource{File: f})
	}
	if len(sources) == 0 {
		return nil, errors.New("nothing to build: name a crate or pass --json")
	}
	return sources, nil
}

// builder carries what every crate build shares.
type builder struct {
	fetcher *docs.Fetcher
	cache   *docs.JSONCache
	writer  *site.Writer
	ledger  *db.DB

	// Writing and recording happen under one lock so the newest recorded
	// build is also the last writer of every shared implementors file.
	commitMu sync.Mutex
}

type buildResult struct {
	Build     *db.Build
	Artifacts []site.Artifact
}

func (r buildResult) changed() int {
	n := 0
	for _, a := range r.Artifacts {
		if a.Changed {
			n++
		}
	}
	return n
}

func runBuild(cmd *cobra.Command, args []string) {
	sources, err := parseSources(args, buildJSONFiles)
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(1)
	}

	jobs := buildJobs
	if jobs <= 0 {
		jobs = cfg.Build.Jobs
	}

	ledger, err := openLedger()
	if err != nil {
		slog.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	b := &builder{
		fetcher: docs.NewFetcher(cfg.Fetch.UserAgent, cfg.Fetch.Timeout),
		writer:  &site.Writer{Dir: cfg.Output.Dir, Snapshots: &cas.Store{Dir: config.CASDir()}},
		ledger:  ledger,
	}
	if !buildNoCache {
		b.cache = &docs.JSONCache{Dir: config.JSONCacheDir()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := b.buildAll(ctx, sources, jobs)
	for _, r := range results {
		if r.Build == nil {
			continue
		}
		fmt.Printf("  %s@%s: %d artifacts (%d changed)\n", r.Build.Crate, r.Build.Version, len(r.Artifacts), r.changed())
	}
	if err != nil {
		slog.Error("build failed", "error", err)
		ledger.Close()
		os.Exit(1)
	}
}

// buildAll builds sources with at most jobs in flight. The first failure
// cancels the rest; results keep source order.
func (b *builder) buildAll(ctx context.Context, sources []buildSource, jobs int) ([]buildResult, error) {
	results := make([]buildResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, src := range sources {
		g.Go(func() error {
			r, err := b.build(ctx, src)
			if err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
			results[i] = r
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func (b *builder) build(ctx context.Context, src buildSource) (buildResult, error) {
	data, fallbackName, err := b.load(ctx, src)
	if err != nil {
		return buildResult{}, err
	}

	crate, err := docs.Parse(data)
	if err != nil {
		return buildResult{}, err
	}
	idx, err := docs.Build(crate, fallbackName, src.Version)
	if err != nil {
		return buildResult{}, err
	}
	if idx.Version == "" {
		idx.Version = "latest"
	}
	if err := checkFragments(idx); err != nil {
		return buildResult{}, err
	}

	build, artifacts, err := b.commit(idx, cas.Hash(data))
	if err != nil {
		return buildResult{}, err
	}

	slog.Info("built crate", "crate", idx.Crate, "version", idx.Version,
		"sidebars", len(idx.Sidebars), "traits", len(idx.Traits))
	return buildResult{Build: build, Artifacts: artifacts}, nil
}

func (b *builder) commit(idx *docs.CrateIndex, inputHash string) (*db.Build, []site.Artifact, error) {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()

	previous, err := b.previousArtifacts(idx.Crate)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := b.writer.WriteCrate(idx)
	if err != nil {
		return nil, nil, fmt.Errorf("writing artifacts: %w", err)
	}

	// The crate's contribution is replaced wholesale: whatever the last
	// build wrote and this one did not is withdrawn.
	current := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		current[a.Path] = true
	}
	var stale []string
	for _, p := range previous {
		if !current[p] {
			stale = append(stale, p)
		}
	}
	rewritten, err := b.writer.Prune(idx.Crate, stale)
	if err != nil {
		return nil, nil, fmt.Errorf("pruning stale artifacts: %w", err)
	}
	if len(stale) > 0 {
		slog.Info("withdrew stale artifacts", "crate", idx.Crate, "stale", len(stale), "rewritten", len(rewritten))
	}
	// Shared files the crate left are recorded too, so the ledger always
	// holds the hash of their last write.
	artifacts = append(artifacts, rewritten...)

	build, err := b.ledger.RecordBuild(ledgerRecord(idx, inputHash, artifacts))
	if err != nil {
		return nil, nil, fmt.Errorf("recording build: %w", err)
	}
	return build, artifacts, nil
}

// previousArtifacts lists the paths recorded by the crate's latest build.
func (b *builder) previousArtifacts(crate string) ([]string, error) {
	prev, err := b.ledger.LatestBuild(crate)
	if errors.Is(err, db.ErrNoBuild) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	recorded, err := b.ledger.Artifacts(prev.ID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(recorded))
	for _, a := range recorded {
		paths = append(paths, a.Path)
	}
	return paths, nil
}

func (b *builder) load(ctx context.Context, src buildSource) ([]byte, string, error) {
	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", src.File, err)
		}
		return data, strings.TrimSuffix(filepath.Base(src.File), ".json"), nil
	}

	// Only pinned versions are cached; "latest" moves.
	cacheable := b.cache != nil && src.Version != "" && src.Version != "latest"
	if cacheable && b.cache.Has(src.Name, src.Version) {
		data, err := b.cache.Load(src.Name, src.Version)
		if err == nil {
			slog.Debug("using cached rustdoc JSON", "crate", src.Name, "version", src.Version)
			return data, src.Name, nil
		}
		slog.Warn("ignoring unreadable cache entry", "crate", src.Name, "error", err)
	}

	slog.Info("fetching rustdoc JSON", "crate", src.Name, "version", src.Version)
	data, err := b.fetcher.Fetch(ctx, src.Name, src.Version)
	if err != nil {
		return nil, "", err
	}
	if cacheable {
		if err := b.cache.Save(data, src.Name, src.Version); err != nil {
			slog.Warn("failed to cache rustdoc JSON", "crate", src.Name, "error", err)
		}
	}
	return data, src.Name, nil
}

// checkFragments rejects generated impl headers that would break the
// trait page.
func checkFragments(idx *docs.CrateIndex) error {
	var errs []error
	for _, t := range idx.Traits {
		for i, f := range t.Fragments {
			if err := navindex.ValidateFragment(f); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", strings.Join(t.Path, "::"), i, err))
			}
		}
	}
	return errors.Join(errs...)
}

func ledgerRecord(idx *docs.CrateIndex, inputHash string, artifacts []site.Artifact) *db.BuildRecord {
	rec := &db.BuildRecord{Crate: idx.Crate, Version: idx.Version, InputHash: inputHash}
	for _, a := range artifacts {
		rec.Artifacts = append(rec.Artifacts, db.Artifact{Path: a.Path, Kind: string(a.Kind), Hash: a.Hash})
	}
	for _, ms := range idx.Sidebars {
		module := strings.Join(ms.Path, "::")
		for _, cat := range ms.Sidebar.Categories() {
			for _, e := range ms.Sidebar.Entries(cat) {
				rec.Items = append(rec.Items, db.Item{
					Crate:       idx.Crate,
					Module:      module,
					Category:    cat,
					Name:        e.Name,
					Description: e.Desc,
				})
			}
		}
	}
	for _, t := range idx.Traits {
		trait := strings.Join(t.Path, "::")
		for i, f := range t.Fragments {
			rec.Implementors = append(rec.Implementors, db.Implementor{
				Crate:    idx.Crate,
				Trait:    trait,
				Position: i,
				Fragment: f,
				Text:     navindex.FragmentText(f),
			})
		}
	}
	return rec
}
