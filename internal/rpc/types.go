package rpc

import (
	"time"

	"github.com/jcdickinson/ferrisnav/internal/db"
)

// StatusResponse is the response body for GET /api/status.
type StatusResponse struct {
	OutputDir string        `json:"output_dir"`
	Builds    []BuildStatus `json:"builds"`
}

type BuildStatus struct {
	Crate     string    `json:"crate"`
	Version   string    `json:"version"`
	InputHash string    `json:"input_hash"`
	BuiltAt   time.Time `json:"built_at"`
	Artifacts int       `json:"artifacts"`
}

// BuildStatuses converts ledger rows, never returning nil.
func BuildStatuses(builds []db.Build) []BuildStatus {
	out := make([]BuildStatus, 0, len(builds))
	for _, b := range builds {
		out = append(out, BuildStatus{
			Crate:     b.Crate,
			Version:   b.Version,
			InputHash: b.InputHash,
			BuiltAt:   b.BuiltAt,
			Artifacts: b.Artifacts,
		})
	}
	return out
}

// Update types pushed over /live.
const (
	UpdateSidebar      = "sidebar"
	UpdateImplementors = "implementors"
	UpdateRemoved      = "removed"
)

// Update is one websocket message: an artifact under the output directory
// changed. Exactly one of Sidebar and Implementors is set for changes that
// decoded; Error is set when the new file could not be decoded.
type Update struct {
	Type         string              `json:"type"`
	Path         string              `json:"path"`
	Hash         string              `json:"hash,omitempty"`
	Sidebar      map[string][]Entry  `json:"sidebar,omitempty"`
	Implementors map[string][]string `json:"implementors,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Entry is a sidebar (name, description) pair.
type Entry struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// ItemResult is one search_items match.
type ItemResult struct {
	Crate       string `json:"crate"`
	Module      string `json:"module"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ImplementorResult is one list_implementors entry. Header is the impl
// line as plain text; Links are the items it references.
type ImplementorResult struct {
	Crate  string       `json:"crate"`
	Trait  string       `json:"trait"`
	Header string       `json:"header"`
	Links  []LinkResult `json:"links,omitempty"`
}

type LinkResult struct {
	Class string `json:"class"`
	Href  string `json:"href"`
	Title string `json:"title"`
}
