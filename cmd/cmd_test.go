package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
	"github.com/jcdickinson/ferrisnav/internal/site"
)

const (
	widgetsSidebar = "widgets/sidebar-items.js"
	extraSidebar   = "widgets/extra/sidebar-items.js"
	cloneFile      = "implementors/core/clone/trait.Clone.js"
)

func TestParseSources(t *testing.T) {
	t.Parallel()

	got, err := parseSources([]string{"clippy@0.0.104", "serde"}, []string{"local.json"})
	if err != nil {
		t.Fatal(err)
	}
	want := []buildSource{
		{Name: "clippy", Version: "0.0.104"},
		{Name: "serde"},
		{File: "local.json"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[0].String() != "clippy@0.0.104" || got[1].String() != "serde" {
		t.Errorf("String() = %q, %q", got[0], got[1])
	}

	if _, err := parseSources(nil, nil); err == nil {
		t.Error("expected error with no sources")
	}
	if _, err := parseSources([]string{"@1.0"}, nil); err == nil {
		t.Error("expected error for empty crate name")
	}
}

type testEnv struct {
	dir    string
	store  *cas.Store
	writer *site.Writer
	ledger *db.DB
}

// buildFixtures builds widgets then gadgets, one at a time, into a fresh
// docs tree.
func buildFixtures(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	ledger, err := db.New(filepath.Join(tmp, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	env := &testEnv{
		dir:    filepath.Join(tmp, "doc"),
		store:  &cas.Store{Dir: filepath.Join(tmp, "cas")},
		ledger: ledger,
	}
	env.writer = &site.Writer{Dir: env.dir, Snapshots: env.store}

	b := &builder{writer: env.writer, ledger: ledger}
	sources := []buildSource{
		{File: filepath.Join("testdata", "widgets.json")},
		{File: filepath.Join("testdata", "gadgets.json")},
	}
	results, err := b.buildAll(context.Background(), sources, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Build.Crate != "widgets" || results[1].Build.Crate != "gadgets" {
		t.Fatalf("results out of order: %s, %s", results[0].Build.Crate, results[1].Build.Crate)
	}
	return env
}

func TestBuild_LocalJSON(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)

	for _, rel := range []string{widgetsSidebar, extraSidebar, "gadgets/sidebar-items.js", cloneFile} {
		if _, err := os.Stat(filepath.Join(env.dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	data, err := site.Read(env.dir, cloneFile)
	if err != nil {
		t.Fatal(err)
	}
	im, err := navindex.DecodeImplementors(data)
	if err != nil {
		t.Fatal(err)
	}
	crates := im.Crates()
	if len(crates) != 2 || crates[0] != "widgets" || crates[1] != "gadgets" {
		t.Errorf("shared implementors crates = %v", crates)
	}

	build, err := env.ledger.LatestBuild("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if build.Version != "1.0.0" || build.Artifacts != 3 {
		t.Errorf("widgets build = %+v", build)
	}
	raw, _ := os.ReadFile(filepath.Join("testdata", "widgets.json"))
	if build.InputHash != cas.Hash(raw) {
		t.Errorf("input hash = %s", build.InputHash)
	}

	items, err := env.ledger.FindItems("Widget", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 || items[0].Name != "Widget" || items[0].Module != "widgets" {
		t.Errorf("items = %+v", items)
	}
	impls, err := env.ledger.ImplementorsOf("Clone")
	if err != nil {
		t.Fatal(err)
	}
	if len(impls) != 2 {
		t.Errorf("implementors = %+v", impls)
	}
}

func TestBuild_Rebuild(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)

	b := &builder{writer: env.writer, ledger: env.ledger}
	results, err := b.buildAll(context.Background(), []buildSource{{File: filepath.Join("testdata", "widgets.json")}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n := results[0].changed(); n != 0 {
		t.Errorf("rebuild changed %d artifacts, want 0", n)
	}
}

func TestBuild_RebuildWithdrawsStaleArtifacts(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)

	// The new version drops the extra module and its Clone impl.
	b := &builder{writer: env.writer, ledger: env.ledger}
	bare := []buildSource{{File: filepath.Join("testdata", "widgets-bare.json")}}
	if _, err := b.buildAll(context.Background(), bare, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(env.dir, filepath.FromSlash(extraSidebar))); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale sidebar still present: %v", err)
	}
	data, err := site.Read(env.dir, cloneFile)
	if err != nil {
		t.Fatal(err)
	}
	im, err := navindex.DecodeImplementors(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := im.Crates(); len(got) != 1 || got[0] != "gadgets" {
		t.Errorf("crates after rebuild = %v", got)
	}
	impls, _ := env.ledger.ImplementorsOf("Clone")
	if len(impls) != 1 || impls[0].Crate != "gadgets" {
		t.Errorf("ledger implementors = %+v", impls)
	}

	// The ledger still knows the shared file's last hash, now and after
	// another rebuild that leaves it alone.
	for i := 0; i < 2; i++ {
		findings, err := verifyTree(env.writer, env.ledger, env.store, nil, false)
		if err != nil || len(findings) != 0 {
			t.Fatalf("verify after rebuild %d: findings %+v, err %v", i+1, findings, err)
		}
		if _, err := b.buildAll(context.Background(), bare, 1); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuild_MissingFile(t *testing.T) {
	t.Parallel()
	b := &builder{}
	_, err := b.buildAll(context.Background(), []buildSource{{File: filepath.Join("testdata", "nope.json")}}, 2)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}

func TestCheckTree(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)

	problems, err := checkTree(env.dir, navindex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if errs := navindex.Errors(problems); errs != nil || len(problems) != 0 {
		t.Fatalf("fresh build has problems: %v", problems)
	}

	full := filepath.Join(env.dir, filepath.FromSlash(widgetsSidebar))
	data, _ := os.ReadFile(full)
	os.WriteFile(full, append(data, []byte("// edited\n")...), 0644)
	bad := filepath.Join(env.dir, "widgets", "inner", "sidebar-items.js")
	os.MkdirAll(filepath.Dir(bad), 0755)
	os.WriteFile(bad, []byte(`initSidebarItems({"struct":[["Thing",""]]});`), 0644)

	problems, err = checkTree(env.dir, navindex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if n := printProblems(&out, problems); n != 1 {
		t.Errorf("error count = %d\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "not in canonical form") {
		t.Errorf("missing canonical-form warning:\n%s", out.String())
	}

	problems, _ = checkTree(env.dir, navindex.Options{AllowUndocumented: true})
	if n := printProblems(&out, problems); n != 0 {
		t.Errorf("error count with AllowUndocumented = %d", n)
	}
}

func TestCheckTree_RustdocArtifacts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for src, rel := range map[string]string{
		"trait.Drop.js":    "implementors/core/ops/trait.Drop.js",
		"sidebar-items.js": "clippy/utils/conf/sidebar-items.js",
	} {
		data, err := os.ReadFile(filepath.Join("..", "internal", "navindex", "testdata", src))
		if err != nil {
			t.Fatal(err)
		}
		full := filepath.Join(dir, filepath.FromSlash(rel))
		os.MkdirAll(filepath.Dir(full), 0755)
		if err := os.WriteFile(full, data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	problems, err := checkTree(dir, navindex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 0 {
		t.Errorf("rustdoc's own artifacts reported: %v", problems)
	}
}

func TestCheckTree_Empty(t *testing.T) {
	t.Parallel()
	if _, err := checkTree(t.TempDir(), navindex.Options{}); !errors.Is(err, errNoArtifacts) {
		t.Errorf("err = %v, want errNoArtifacts", err)
	}
}

func TestCheckArtifact_Undecodable(t *testing.T) {
	t.Parallel()
	a := site.Artifact{Path: widgetsSidebar, Kind: site.KindSidebar}
	problems := checkArtifact(a, []byte("initSidebarItems("), navindex.Options{})
	if len(problems) != 1 || problems[0].Warning {
		t.Errorf("problems = %+v", problems)
	}
}

func TestVerifyTree(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)

	findings, err := verifyTree(env.writer, env.ledger, env.store, nil, false)
	if err != nil || len(findings) != 0 {
		t.Fatalf("fresh build: findings %+v, err %v", findings, err)
	}

	os.WriteFile(filepath.Join(env.dir, filepath.FromSlash(widgetsSidebar)), []byte("tampered"), 0644)
	os.Remove(filepath.Join(env.dir, filepath.FromSlash(cloneFile)))

	findings, err = verifyTree(env.writer, env.ledger, env.store, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	states := map[string]verifyFinding{}
	for _, f := range findings {
		states[f.Path] = f
	}
	if len(findings) != 2 || states[widgetsSidebar].State != stateModified || states[cloneFile].State != stateMissing {
		t.Fatalf("findings = %+v", findings)
	}
	// The shared file belongs to the build that wrote it last.
	if states[cloneFile].Crate != "gadgets" {
		t.Errorf("%s attributed to %s", cloneFile, states[cloneFile].Crate)
	}

	findings, _ = verifyTree(env.writer, env.ledger, env.store, []string{"widgets"}, false)
	if len(findings) != 1 || findings[0].Path != widgetsSidebar {
		t.Errorf("widgets only: %+v", findings)
	}

	findings, err = verifyTree(env.writer, env.ledger, env.store, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range findings {
		if f.State != stateRepaired {
			t.Errorf("%s: %s", f.Path, f.State)
		}
	}
	findings, err = verifyTree(env.writer, env.ledger, env.store, nil, false)
	if err != nil || len(findings) != 0 {
		t.Errorf("after repair: findings %+v, err %v", findings, err)
	}
}

func TestVerifyTree_NoSnapshot(t *testing.T) {
	t.Parallel()
	env := buildFixtures(t)
	os.Remove(filepath.Join(env.dir, filepath.FromSlash(widgetsSidebar)))

	empty := &cas.Store{Dir: t.TempDir()}
	findings, err := verifyTree(env.writer, env.ledger, empty, nil, true)
	if err == nil {
		t.Fatal("expected error without snapshot")
	}
	if len(findings) != 1 || findings[0].State != stateMissing {
		t.Errorf("findings = %+v", findings)
	}
}
