package site

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/docs"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
)

func TestPaths(t *testing.T) {
	t.Parallel()

	if got := SidebarPath([]string{"clippy", "utils", "conf"}); got != "clippy/utils/conf/sidebar-items.js" {
		t.Errorf("SidebarPath = %s", got)
	}
	if got := ImplementorsPath([]string{"core", "ops", "Drop"}, "trait"); got != "implementors/core/ops/trait.Drop.js" {
		t.Errorf("ImplementorsPath = %s", got)
	}
	if got := ImplementorsPath([]string{"demo", "Alias"}, "trait_alias"); got != "implementors/demo/traitalias.Alias.js" {
		t.Errorf("ImplementorsPath alias = %s", got)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		kind Kind
		ok   bool
	}{
		{"clippy/sidebar-items.js", KindSidebar, true},
		{"implementors/core/ops/trait.Drop.js", KindImplementors, true},
		{"clippy/struct.LimitStack.html", "", false},
		{"main.js", "", false},
	}
	for _, tt := range tests {
		kind, ok := KindOf(tt.rel)
		if kind != tt.kind || ok != tt.ok {
			t.Errorf("KindOf(%s) = %s, %v", tt.rel, kind, ok)
		}
	}
}

func TestWriteSidebar_SkipsUnchanged(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}

	s := navindex.NewSidebar()
	s.Add("struct", "LimitStack", "")
	first, err := w.WriteSidebar([]string{"clippy", "utils"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed || first.Kind != KindSidebar || first.Path != "clippy/utils/sidebar-items.js" {
		t.Errorf("first write = %+v", first)
	}

	second, err := w.WriteSidebar([]string{"clippy", "utils"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed {
		t.Error("identical rewrite reported as changed")
	}
	if second.Hash != first.Hash {
		t.Error("hash differs for identical content")
	}

	data, err := Read(w.Dir, first.Path)
	if err != nil {
		t.Fatal(err)
	}
	if cas.Hash(data) != first.Hash {
		t.Error("reported hash does not match file")
	}
	if got, err := navindex.DecodeSidebar(data); err != nil || got.Len() != 1 {
		t.Errorf("decoded sidebar = %v, %v", got, err)
	}
}

func TestWriteImplementors_MergesCrates(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}
	drop := []string{"core", "ops", "Drop"}

	if _, err := w.WriteImplementors("clippy", docs.TraitImplementors{
		Path: drop, Kind: "trait", Fragments: []string{"impl <a class='trait' href='#'>Drop</a> for LimitStack"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.WriteImplementors("regex_syntax", docs.TraitImplementors{
		Path: drop, Kind: "trait", Fragments: []string{"impl&lt;T&gt; <a class='trait' href='#'>Drop</a> for Vec&lt;T&gt;"},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := Read(w.Dir, "implementors/core/ops/trait.Drop.js")
	if err != nil {
		t.Fatal(err)
	}
	im, err := navindex.DecodeImplementors(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := im.Crates(); !reflect.DeepEqual(got, []string{"clippy", "regex_syntax"}) {
		t.Errorf("crates = %v", got)
	}

	// Rebuilding one crate replaces only its own key.
	a, err := w.WriteImplementors("clippy", docs.TraitImplementors{
		Path: drop, Kind: "trait", Fragments: []string{"impl <a class='trait' href='#'>Drop</a> for DiagnosticWrapper"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Changed {
		t.Error("expected change")
	}
	data, _ = Read(w.Dir, a.Path)
	im, err = navindex.DecodeImplementors(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := im.Fragments("clippy"); len(got) != 1 || got[0] != "impl <a class='trait' href='#'>Drop</a> for DiagnosticWrapper" {
		t.Errorf("clippy fragments = %v", got)
	}
	if got := im.Fragments("regex_syntax"); len(got) != 1 {
		t.Errorf("regex_syntax fragments lost: %v", got)
	}

	// No fragments drops the crate's key.
	if _, err := w.WriteImplementors("clippy", docs.TraitImplementors{Path: drop, Kind: "trait"}); err != nil {
		t.Fatal(err)
	}
	data, _ = Read(w.Dir, a.Path)
	im, _ = navindex.DecodeImplementors(data)
	if got := im.Crates(); !reflect.DeepEqual(got, []string{"regex_syntax"}) {
		t.Errorf("crates after removal = %v", got)
	}
}

func TestWriteImplementors_CorruptExisting(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}

	full := filepath.Join(w.Dir, "implementors", "core", "ops", "trait.Drop.js")
	os.MkdirAll(filepath.Dir(full), 0755)
	os.WriteFile(full, []byte("this is not javascript {"), 0644)

	_, err := w.WriteImplementors("clippy", docs.TraitImplementors{
		Path: []string{"core", "ops", "Drop"}, Kind: "trait", Fragments: []string{"impl <a href='#'>Drop</a> for X"},
	})
	if err == nil {
		t.Fatal("expected error instead of clobbering an unreadable file")
	}
}

func TestWriteCrate_SnapshotsAndScan(t *testing.T) {
	t.Parallel()
	store := &cas.Store{Dir: t.TempDir()}
	w := &Writer{Dir: t.TempDir(), Snapshots: store}

	root := navindex.NewSidebar()
	root.Add("mod", "utils", "Utility helpers.")
	utils := navindex.NewSidebar()
	utils.Add("struct", "LimitStack", "")

	idx := &docs.CrateIndex{
		Crate: "clippy",
		Sidebars: []docs.ModuleSidebar{
			{Path: []string{"clippy"}, Sidebar: root},
			{Path: []string{"clippy", "utils"}, Sidebar: utils},
		},
		Traits: []docs.TraitImplementors{
			{Path: []string{"core", "ops", "Drop"}, Kind: "trait", Fragments: []string{"impl <a href='#'>Drop</a> for LimitStack"}},
		},
	}
	artifacts, err := w.WriteCrate(idx)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("got %d artifacts", len(artifacts))
	}
	for _, a := range artifacts {
		if !store.Has(a.Hash) {
			t.Errorf("%s not snapshotted", a.Path)
		}
	}

	// Stray files are ignored by Scan.
	os.WriteFile(filepath.Join(w.Dir, "clippy", "index.html"), []byte("<html>"), 0644)

	scanned, err := Scan(w.Dir)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, a := range scanned {
		paths = append(paths, a.Path)
	}
	want := []string{
		"clippy/sidebar-items.js",
		"clippy/utils/sidebar-items.js",
		"implementors/core/ops/trait.Drop.js",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("Scan = %v", paths)
	}

	// Restore brings back a deleted artifact from its snapshot.
	target := artifacts[1]
	os.Remove(filepath.Join(w.Dir, "clippy", "utils", "sidebar-items.js"))
	data, err := store.Read(target.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Restore(target.Path, data); err != nil {
		t.Fatal(err)
	}
	restored, err := Read(w.Dir, target.Path)
	if err != nil || cas.Hash(restored) != target.Hash {
		t.Errorf("restore failed: %v", err)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	w := &Writer{Dir: t.TempDir()}
	drop := docs.TraitImplementors{Path: []string{"core", "ops", "Drop"}, Kind: "trait"}
	send := docs.TraitImplementors{Path: []string{"core", "marker", "Send"}, Kind: "trait"}

	for _, crate := range []string{"demo", "other"} {
		drop.Fragments = []string{"impl <a class='trait' href='#'>Drop</a> for " + crate}
		if _, err := w.WriteImplementors(crate, drop); err != nil {
			t.Fatal(err)
		}
	}
	send.Fragments = []string{"impl <a class='trait' href='#'>Send</a> for Demo"}
	if _, err := w.WriteImplementors("demo", send); err != nil {
		t.Fatal(err)
	}
	s := navindex.NewSidebar()
	s.Add("fn", "old", "Gone soon.")
	for _, p := range [][]string{{"demo", "old"}, {"other"}} {
		if _, err := w.WriteSidebar(p, s); err != nil {
			t.Fatal(err)
		}
	}

	dropPath := ImplementorsPath(drop.Path, "trait")
	sendPath := ImplementorsPath(send.Path, "trait")
	rewritten, err := w.Prune("demo", []string{dropPath, sendPath, "demo/old/sidebar-items.js", "other/sidebar-items.js", "demo/index.html"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rewritten) != 1 || rewritten[0].Path != dropPath || !rewritten[0].Changed {
		t.Errorf("rewritten = %+v", rewritten)
	}

	data, _ := Read(w.Dir, dropPath)
	im, err := navindex.DecodeImplementors(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := im.Crates(); !reflect.DeepEqual(got, []string{"other"}) {
		t.Errorf("crates after prune = %v", got)
	}
	if _, err := Read(w.Dir, sendPath); !os.IsNotExist(err) {
		t.Errorf("implementors file with no crates left: %v", err)
	}
	if _, err := Read(w.Dir, "demo/old/sidebar-items.js"); !os.IsNotExist(err) {
		t.Errorf("stale sidebar: %v", err)
	}
	if _, err := Read(w.Dir, "other/sidebar-items.js"); err != nil {
		t.Errorf("another crate's sidebar was touched: %v", err)
	}

	// Pruning again finds nothing of demo's left.
	rewritten, err = w.Prune("demo", []string{dropPath})
	if err != nil || len(rewritten) != 0 {
		t.Errorf("second prune = %+v, %v", rewritten, err)
	}
}
