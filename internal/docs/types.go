package docs

import "encoding/json"

// RustdocCrate is the top-level structure of rustdoc JSON output.
type RustdocCrate struct {
	Root           int                       `json:"root"`
	CrateVersion   *string                   `json:"crate_version"`
	Index          map[string]RustdocItem    `json:"index"`
	Paths          map[string]RustdocSummary `json:"paths"`
	ExternalCrates map[string]ExternalCrate  `json:"external_crates"`
	FormatVersion  int                       `json:"format_version"`
}

// ExternalCrate identifies a dependency crate by name.
type ExternalCrate struct {
	Name        string  `json:"name"`
	HTMLRootURL *string `json:"html_root_url"`
}

// RustdocItem is a single item in the rustdoc index.
type RustdocItem struct {
	ID         int             `json:"id"`
	CrateID    int             `json:"crate_id"`
	Name       *string         `json:"name"`
	Docs       *string         `json:"docs"`
	Visibility json.RawMessage `json:"visibility"`
	Inner      json.RawMessage `json:"inner"`
}

// RustdocSummary provides the path and kind for an item.
type RustdocSummary struct {
	CrateID int      `json:"crate_id"`
	Path    []string `json:"path"`
	Kind    string   `json:"kind"`
}

// CrateIndex is everything generated from one crate: a sidebar per module
// and the implementor fragments this crate contributes to each trait.
type CrateIndex struct {
	Crate    string
	Version  string
	Sidebars []ModuleSidebar
	Traits   []TraitImplementors
}

// TraitImplementors lists one crate's impl headers for a trait.
type TraitImplementors struct {
	// Path is the trait's full path, e.g. ["core", "ops", "Drop"].
	Path      []string
	Kind      string
	Fragments []string
}
