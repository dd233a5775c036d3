package docs

import (
	"strconv"
	"strings"
)

// std crates are published under doc.rust-lang.org rather than docs.rs.
var stdCrates = map[string]bool{
	"std": true, "core": true, "alloc": true, "proc_macro": true, "test": true,
}

const stdRootURL = "https://doc.rust-lang.org/nightly/"

// pagePrefix maps a rustdoc item kind to the prefix of its HTML page name,
// e.g. struct.LimitStack.html.
var pagePrefix = map[string]string{
	"struct":         "struct",
	"enum":           "enum",
	"union":          "union",
	"trait":          "trait",
	"trait_alias":    "traitalias",
	"function":       "fn",
	"type_alias":     "type",
	"typedef":        "type",
	"constant":       "constant",
	"static":         "static",
	"macro":          "macro",
	"proc_attribute": "attr",
	"proc_derive":    "derive",
	"primitive":      "primitive",
	"extern_type":    "foreigntype",
	"keyword":        "keyword",
}

// Link describes where an item's documentation page lives.
type Link struct {
	Href  string
	Class string
	Title string
	Name  string
}

// ItemLink resolves a rustdoc item ID to its page. Local items link relative
// to the site root; items from other crates link under the crate's
// html_root_url. ok is false when the item has no path entry.
func (c *RustdocCrate) ItemLink(itemID int) (Link, bool) {
	summary, ok := c.Paths[strconv.Itoa(itemID)]
	if !ok || len(summary.Path) == 0 {
		return Link{}, false
	}

	base := ""
	if summary.CrateID != 0 {
		base = c.externalRoot(summary.CrateID)
		if base == "" {
			return Link{}, false
		}
	}

	page, class := pagePath(summary.Path, summary.Kind)
	if page == "" {
		return Link{}, false
	}
	return Link{
		Href:  base + page,
		Class: class,
		Title: strings.Join(summary.Path, "::"),
		Name:  summary.Path[len(summary.Path)-1],
	}, true
}

// pagePath builds the site-relative page for an item path, e.g.
// ["clippy", "utils", "LimitStack"] + struct → clippy/utils/struct.LimitStack.html.
func pagePath(path []string, kind string) (string, string) {
	if kind == "module" {
		return strings.Join(path, "/") + "/index.html", "mod"
	}
	prefix, ok := pagePrefix[kind]
	if !ok {
		return "", ""
	}
	last := path[len(path)-1]
	if kind == "primitive" && len(path) == 1 {
		// Primitive paths carry only the type name.
		return "std/primitive." + last + ".html", prefix
	}
	dir := strings.Join(path[:len(path)-1], "/")
	if dir != "" {
		dir += "/"
	}
	return dir + prefix + "." + last + ".html", prefix
}

// externalRoot returns the documentation root for a dependency crate, always
// ending in "/". Crates without an html_root_url fall back to docs.rs.
func (c *RustdocCrate) externalRoot(crateID int) string {
	ext, ok := c.ExternalCrates[strconv.Itoa(crateID)]
	if !ok {
		return ""
	}
	if ext.HTMLRootURL != nil && *ext.HTMLRootURL != "" {
		root := *ext.HTMLRootURL
		if !strings.HasSuffix(root, "/") {
			root += "/"
		}
		return root
	}
	if stdCrates[ext.Name] {
		return stdRootURL
	}
	return "https://docs.rs/" + ext.Name + "/latest/"
}

// ModulePagePath is the directory of a module's pages, e.g.
// ["clippy", "utils", "conf"] → clippy/utils/conf.
func ModulePagePath(path []string) string {
	return strings.Join(path, "/")
}
