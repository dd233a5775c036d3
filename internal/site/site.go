// Package site lays generated navigation artifacts out under a rustdoc
// output directory.
package site

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/docs"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
)

// Kind tells the two artifact formats apart.
type Kind string

const (
	KindSidebar      Kind = "sidebar"
	KindImplementors Kind = "implementors"
)

const (
	sidebarFile     = "sidebar-items.js"
	implementorsDir = "implementors"
)

// Artifact is one generated file, addressed relative to the output
// directory with forward slashes.
type Artifact struct {
	Path    string
	Kind    Kind
	Hash    string
	Changed bool
}

// Writer writes artifacts under Dir. When Snapshots is set every artifact
// written is also stored there by hash.
type Writer struct {
	Dir       string
	Snapshots *cas.Store

	// implementors files are shared by every crate implementing the trait;
	// merges are read-modify-write.
	mu sync.Mutex
}

// SidebarPath is where a module's sidebar lives, e.g. clippy/utils/sidebar-items.js.
func SidebarPath(modulePath []string) string {
	return path.Join(docs.ModulePagePath(modulePath), sidebarFile)
}

// ImplementorsPath is where a trait's implementors live, e.g.
// implementors/core/ops/trait.Drop.js.
func ImplementorsPath(traitPath []string, kind string) string {
	prefix := "trait"
	if kind == "trait_alias" {
		prefix = "traitalias"
	}
	parts := append([]string{implementorsDir}, traitPath[:len(traitPath)-1]...)
	parts = append(parts, prefix+"."+traitPath[len(traitPath)-1]+".js")
	return path.Join(parts...)
}

// WriteCrate writes every sidebar and implementors file for one crate.
func (w *Writer) WriteCrate(idx *docs.CrateIndex) ([]Artifact, error) {
	var artifacts []Artifact
	for _, ms := range idx.Sidebars {
		a, err := w.WriteSidebar(ms.Path, ms.Sidebar)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, a)
	}
	for _, t := range idx.Traits {
		a, err := w.WriteImplementors(idx.Crate, t)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// WriteSidebar encodes and writes one module's sidebar.
func (w *Writer) WriteSidebar(modulePath []string, s *navindex.Sidebar) (Artifact, error) {
	if len(modulePath) == 0 {
		return Artifact{}, errors.New("sidebar without module path")
	}
	data, err := navindex.SidebarBytes(s)
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding sidebar for %s: %w", strings.Join(modulePath, "::"), err)
	}
	return w.write(SidebarPath(modulePath), KindSidebar, data)
}

// WriteImplementors merges crate's fragments for a trait into the shared
// implementors file, keeping every other crate's entry.
func (w *Writer) WriteImplementors(crate string, t docs.TraitImplementors) (Artifact, error) {
	if len(t.Path) == 0 {
		return Artifact{}, errors.New("implementors without trait path")
	}
	rel := ImplementorsPath(t.Path, t.Kind)

	w.mu.Lock()
	defer w.mu.Unlock()

	im, err := w.loadImplementors(rel)
	if err != nil {
		return Artifact{}, err
	}

	if len(t.Fragments) == 0 {
		im.Remove(crate)
	} else {
		im.Set(crate, t.Fragments)
	}
	data, err := navindex.ImplementorsBytes(im)
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding %s: %w", rel, err)
	}
	return w.write(rel, KindImplementors, data)
}

// loadImplementors decodes the implementors file at rel, or returns an empty
// one when the file does not exist yet. Callers hold mu.
func (w *Writer) loadImplementors(rel string) (*navindex.Implementors, error) {
	existing, err := os.ReadFile(w.abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return navindex.NewImplementors(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading existing %s: %w", rel, err)
	}
	im, err := navindex.DecodeImplementors(existing)
	if err != nil {
		return nil, fmt.Errorf("reading existing %s: %w", rel, err)
	}
	return im, nil
}

// Prune withdraws crate from artifacts its previous build wrote but the
// current one did not. Stale sidebars under the crate's own directory are
// deleted. Stale implementors files lose the crate's key, and are deleted
// once no crate is left. The returned artifacts are the implementors files
// rewritten in place.
func (w *Writer) Prune(crate string, stale []string) ([]Artifact, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rewritten []Artifact
	for _, rel := range stale {
		kind, ok := KindOf(rel)
		if !ok {
			continue
		}
		if kind == KindSidebar {
			if !strings.HasPrefix(rel, crate+"/") {
				continue
			}
			if err := os.Remove(w.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return rewritten, fmt.Errorf("removing %s: %w", rel, err)
			}
			slog.Debug("stale sidebar removed", "path", rel)
			continue
		}

		im, err := w.loadImplementors(rel)
		if err != nil {
			return rewritten, err
		}
		if !im.Has(crate) {
			continue
		}
		im.Remove(crate)
		if len(im.Crates()) == 0 {
			if err := os.Remove(w.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return rewritten, fmt.Errorf("removing %s: %w", rel, err)
			}
			slog.Debug("empty implementors removed", "path", rel)
			continue
		}
		data, err := navindex.ImplementorsBytes(im)
		if err != nil {
			return rewritten, fmt.Errorf("encoding %s: %w", rel, err)
		}
		a, err := w.write(rel, KindImplementors, data)
		if err != nil {
			return rewritten, err
		}
		rewritten = append(rewritten, a)
	}
	return rewritten, nil
}

// Restore puts data back at rel, used to repair from snapshots.
func (w *Writer) Restore(rel string, data []byte) error {
	return writeAtomic(w.abs(rel), data)
}

func (w *Writer) abs(rel string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(rel))
}

func (w *Writer) write(rel string, kind Kind, data []byte) (Artifact, error) {
	a := Artifact{Path: rel, Kind: kind, Hash: cas.Hash(data)}

	if w.Snapshots != nil {
		if _, err := w.Snapshots.Write(data); err != nil {
			return a, fmt.Errorf("snapshotting %s: %w", rel, err)
		}
	}

	full := w.abs(rel)
	if existing, err := os.ReadFile(full); err == nil && bytes.Equal(existing, data) {
		slog.Debug("artifact unchanged", "path", rel)
		return a, nil
	}
	if err := writeAtomic(full, data); err != nil {
		return a, err
	}
	a.Changed = true
	slog.Debug("artifact written", "path", rel, "kind", kind, "bytes", len(data))
	return a, nil
}

func writeAtomic(full string, data []byte) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", full, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", full, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", full, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming into %s: %w", full, err)
	}
	return nil
}

// KindOf classifies a relative artifact path, ok is false for files that
// are neither sidebars nor implementors.
func KindOf(rel string) (Kind, bool) {
	rel = filepath.ToSlash(rel)
	if path.Base(rel) == sidebarFile {
		return KindSidebar, true
	}
	if strings.HasPrefix(rel, implementorsDir+"/") && strings.HasSuffix(rel, ".js") {
		return KindImplementors, true
	}
	return "", false
}

// Scan lists every artifact under dir, sorted by path. Hash is filled in;
// Changed is always false.
func Scan(dir string) ([]Artifact, error) {
	var out []Artifact
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		kind, ok := KindOf(rel)
		if !ok {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, Artifact{Path: filepath.ToSlash(rel), Kind: kind, Hash: cas.Hash(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read loads an artifact's bytes.
func Read(dir, rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
}
