package docs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// JSONCache keeps downloaded rustdoc JSON on disk, zstd-compressed, so
// rebuilds do not hit the network.
type JSONCache struct {
	Dir string
}

func (c JSONCache) path(name, version string) string {
	return filepath.Join(c.Dir, name+"_"+version+".json.zst")
}

// Save compresses data into the cache. The entry appears atomically, so a
// concurrent Load sees either nothing or the whole file.
func (c JSONCache) Save(data []byte, name, version string) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("creating json cache dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	tmp, err := os.CreateTemp(c.Dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(name, version)); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Load reads and decompresses cached rustdoc JSON.
func (c JSONCache) Load(name, version string) ([]byte, error) {
	f, err := os.Open(c.path(name, version))
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing cached rustdoc JSON: %w", err)
	}
	return data, nil
}

// Has checks whether a cached rustdoc JSON file exists on disk.
func (c JSONCache) Has(name, version string) bool {
	_, err := os.Stat(c.path(name, version))
	return err == nil
}
