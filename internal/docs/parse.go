package docs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jcdickinson/ferrisnav/internal/markdown"
)

// Parse decodes rustdoc JSON bytes.
func Parse(data []byte) (*RustdocCrate, error) {
	var crate RustdocCrate
	if err := json.Unmarshal(data, &crate); err != nil {
		return nil, fmt.Errorf("unmarshaling rustdoc JSON: %w", err)
	}
	if _, ok := crate.Index[strconv.Itoa(crate.Root)]; !ok {
		return nil, fmt.Errorf("root item %d missing from index", crate.Root)
	}
	return &crate, nil
}

// Build generates the navigation indexes for a parsed crate. fallbackName is
// used when the root module carries no name.
func Build(crate *RustdocCrate, fallbackName, version string) (*CrateIndex, error) {
	name := crate.LibName()
	if name == "" {
		name = strings.ReplaceAll(fallbackName, "-", "_")
	}
	if name == "" {
		return nil, fmt.Errorf("cannot determine crate name")
	}
	if crate.CrateVersion != nil && *crate.CrateVersion != "" {
		version = *crate.CrateVersion
	}

	return &CrateIndex{
		Crate:    name,
		Version:  version,
		Sidebars: BuildSidebars(crate),
		Traits:   BuildImplementors(crate),
	}, nil
}

// LibName is the root module's name, the crate's lib name with underscores.
func (c *RustdocCrate) LibName() string {
	root, ok := c.Index[strconv.Itoa(c.Root)]
	if !ok || root.Name == nil {
		return ""
	}
	return *root.Name
}

func (c *RustdocCrate) item(id int) (*RustdocItem, bool) {
	it, ok := c.Index[strconv.Itoa(id)]
	if !ok {
		return nil, false
	}
	return &it, true
}

// isPublic reports whether an item is visible outside its crate. Items that
// carry no visibility (as in older format versions) count as public.
func (it *RustdocItem) isPublic() bool {
	if len(it.Visibility) == 0 {
		return true
	}
	var s string
	if err := json.Unmarshal(it.Visibility, &s); err == nil {
		return s == "public" || s == "default"
	}
	// {"restricted": {...}} is pub(crate) and friends.
	return false
}

// summary is the sidebar description for an item: the first paragraph of
// its docs.
func (it *RustdocItem) summary() string {
	if it.Docs == nil {
		return ""
	}
	return markdown.Summary(*it.Docs)
}

// innerKind extracts the kind from the inner JSON's single key.
func innerKind(inner json.RawMessage) string {
	if len(inner) == 0 {
		return "unknown"
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return "unknown"
	}
	for k := range outer {
		return k
	}
	return "unknown"
}

// unwrapInner extracts the inner data for a given kind from a rustdoc Item's Inner field.
// Inner is shaped like {"struct": {...}} or {"enum": {...}}.
func unwrapInner(inner json.RawMessage, kind string) json.RawMessage {
	if len(inner) == 0 {
		return nil
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(inner, &outer); err != nil {
		return nil
	}
	data, ok := outer[kind]
	if !ok {
		return nil
	}
	return data
}
