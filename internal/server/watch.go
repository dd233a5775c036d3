package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jcdickinson/ferrisnav/internal/cas"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
	"github.com/jcdickinson/ferrisnav/internal/rpc"
	"github.com/jcdickinson/ferrisnav/internal/site"
)

// Watch publishes an rpc.Update for every artifact that changes under the
// docs tree until ctx is canceled.
func (s *Server) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	t := &tracker{dir: s.dir, watcher: w, publish: s.publish, hashes: make(map[string]string)}
	if err := t.addTree(s.dir, false); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			t.handle(ev)
		}
	}
}

func (s *Server) publish(u rpc.Update) {
	if delivered := s.updates.Publish(u); !delivered {
		slog.Debug("live: no clients, update queued", "path", u.Path)
	}
}

// tracker turns raw filesystem events into artifact updates. fsnotify is
// not recursive, so new directories are added as they appear.
type tracker struct {
	dir     string
	watcher *fsnotify.Watcher
	publish func(rpc.Update)
	// hashes suppresses duplicate Create/Write events for the same content.
	hashes map[string]string
}

func (t *tracker) addTree(root string, announce bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if err := t.watcher.Add(p); err != nil {
				return fmt.Errorf("watching %s: %w", p, err)
			}
			return nil
		}
		// Files created before the directory watch was in place.
		if announce {
			t.changed(p)
		}
		return nil
	})
}

func (t *tracker) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := t.addTree(ev.Name, true); err != nil {
				slog.Warn("watch: adding directory", "path", ev.Name, "error", err)
			}
			return
		}
		t.changed(ev.Name)
	case ev.Has(fsnotify.Write):
		t.changed(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		t.removed(ev.Name)
	}
}

func (t *tracker) rel(p string) (string, site.Kind, bool) {
	rel, err := filepath.Rel(t.dir, p)
	if err != nil {
		return "", "", false
	}
	rel = filepath.ToSlash(rel)
	kind, ok := site.KindOf(rel)
	return rel, kind, ok
}

func (t *tracker) changed(p string) {
	rel, kind, ok := t.rel(p)
	if !ok {
		return
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return
	}
	hash := cas.Hash(data)
	if t.hashes[rel] == hash {
		return
	}
	t.hashes[rel] = hash
	t.publish(decodeUpdate(rel, kind, data))
}

func (t *tracker) removed(p string) {
	rel, _, ok := t.rel(p)
	if !ok {
		return
	}
	// A rename over an existing artifact reports the old name; only announce
	// when the file is really gone.
	if _, err := os.Stat(p); err == nil {
		return
	}
	delete(t.hashes, rel)
	t.publish(rpc.Update{Type: rpc.UpdateRemoved, Path: rel})
}

// decodeUpdate evaluates an artifact the way a browser would and packages
// its data.
func decodeUpdate(rel string, kind site.Kind, data []byte) rpc.Update {
	u := rpc.Update{Path: rel, Hash: cas.Hash(data)}
	switch kind {
	case site.KindSidebar:
		u.Type = rpc.UpdateSidebar
		s, err := navindex.DecodeSidebar(data)
		if err != nil {
			u.Error = err.Error()
			return u
		}
		u.Sidebar = make(map[string][]rpc.Entry)
		for _, cat := range s.Categories() {
			for _, e := range s.Entries(cat) {
				u.Sidebar[cat] = append(u.Sidebar[cat], rpc.Entry{Name: e.Name, Desc: e.Desc})
			}
		}
	case site.KindImplementors:
		u.Type = rpc.UpdateImplementors
		im, err := navindex.DecodeImplementors(data)
		if err != nil {
			u.Error = err.Error()
			return u
		}
		u.Implementors = make(map[string][]string)
		for _, c := range im.Crates() {
			u.Implementors[c] = im.Fragments(c)
		}
	}
	return u
}
