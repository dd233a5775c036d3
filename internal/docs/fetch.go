package docs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultBaseURL is where published rustdoc JSON lives.
const DefaultBaseURL = "https://docs.rs"

// zstdMagic prefixes zstd frames; docs.rs serves zstd bodies, local mirrors
// may not.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Fetcher downloads rustdoc JSON.
type Fetcher struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// NewFetcher returns a Fetcher against docs.rs.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads and decompresses rustdoc JSON for a crate. The version
// "latest" is resolved by docs.rs via redirect.
func (f *Fetcher) Fetch(ctx context.Context, name, version string) ([]byte, error) {
	if version == "" {
		version = "latest"
	}

	url := fmt.Sprintf("%s/crate/%s/%s/json", f.BaseURL, name, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("docs.rs returned %d for %s/%s: %s", resp.StatusCode, name, version, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return decompress(raw)
}

func decompress(raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing rustdoc JSON: %w", err)
	}
	return data, nil
}
