package docs

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/jcdickinson/ferrisnav/internal/navindex"
)

// ModuleSidebar is the sidebar of one module, keyed by the module's path.
type ModuleSidebar struct {
	Path    []string
	Sidebar *navindex.Sidebar
}

// sidebarCategory maps a rustdoc kind, as it appears both as the inner key
// of an item and in the paths table, to its sidebar category.
var sidebarCategory = map[string]string{
	"module":         "mod",
	"struct":         "struct",
	"enum":           "enum",
	"union":          "union",
	"function":       "fn",
	"trait":          "trait",
	"trait_alias":    "traitalias",
	"type_alias":     "type",
	"typedef":        "type",
	"constant":       "constant",
	"static":         "static",
	"macro":          "macro",
	"primitive":      "primitive",
	"extern_type":    "foreigntype",
	"keyword":        "keyword",
	"proc_attribute": "attr",
	"proc_derive":    "derive",
}

// itemCategory returns the sidebar category of an indexed item, or "" when
// the item never appears in a sidebar.
func itemCategory(item *RustdocItem) string {
	kind := innerKind(item.Inner)
	if kind == "proc_macro" {
		var pm struct {
			Kind string `json:"kind"`
		}
		json.Unmarshal(unwrapInner(item.Inner, "proc_macro"), &pm)
		switch pm.Kind {
		case "attr":
			return "attr"
		case "derive":
			return "derive"
		default:
			return "macro"
		}
	}
	return sidebarCategory[kind]
}

type moduleData struct {
	IsStripped bool  `json:"is_stripped"`
	Items      []int `json:"items"`
}

func isStripped(item *RustdocItem) bool {
	var mod moduleData
	json.Unmarshal(unwrapInner(item.Inner, "module"), &mod)
	return mod.IsStripped
}

type useData struct {
	Name   string `json:"name"`
	ID     *int   `json:"id"`
	IsGlob bool   `json:"is_glob"`
	Glob   bool   `json:"glob"`
}

// BuildSidebars walks the public module tree from the crate root and returns
// one sidebar per module, ordered by module path.
func BuildSidebars(crate *RustdocCrate) []ModuleSidebar {
	w := &sidebarWalker{crate: crate, seen: make(map[int]bool)}
	rootPath := []string{crate.LibName()}
	if summary, ok := crate.Paths[strconv.Itoa(crate.Root)]; ok && len(summary.Path) > 0 {
		rootPath = summary.Path
	}
	w.walk(crate.Root, rootPath)

	sort.Slice(w.out, func(i, j int) bool {
		return strings.Join(w.out[i].Path, "::") < strings.Join(w.out[j].Path, "::")
	})
	return w.out
}

type sidebarWalker struct {
	crate *RustdocCrate
	seen  map[int]bool
	out   []ModuleSidebar
}

func (w *sidebarWalker) walk(moduleID int, path []string) {
	if w.seen[moduleID] {
		return
	}
	w.seen[moduleID] = true

	item, ok := w.crate.item(moduleID)
	if !ok {
		return
	}
	var mod moduleData
	if err := json.Unmarshal(unwrapInner(item.Inner, "module"), &mod); err != nil || mod.IsStripped {
		return
	}

	sidebar := navindex.NewSidebar()
	type child struct {
		id   int
		path []string
	}
	var submodules []child

	for _, childID := range mod.Items {
		childItem, ok := w.crate.item(childID)
		if !ok || !childItem.isPublic() {
			continue
		}

		kind := innerKind(childItem.Inner)
		switch kind {
		case "impl", "extern_crate":
			continue
		case "use":
			w.addReexport(sidebar, childItem)
			continue
		}

		if childItem.Name == nil || (kind == "module" && isStripped(childItem)) {
			continue
		}
		category := itemCategory(childItem)
		if category == "" {
			continue
		}
		sidebar.Add(category, *childItem.Name, childItem.summary())

		if kind == "module" {
			childPath := append(append([]string(nil), path...), *childItem.Name)
			if summary, ok := w.crate.Paths[strconv.Itoa(childID)]; ok && len(summary.Path) > 0 {
				childPath = summary.Path
			}
			submodules = append(submodules, child{id: childID, path: childPath})
		}
	}

	w.out = append(w.out, ModuleSidebar{Path: path, Sidebar: sidebar})
	for _, sub := range submodules {
		w.walk(sub.id, sub.path)
	}
}

// addReexport inlines a non-glob `pub use` under the target's category,
// using the re-exported name.
func (w *sidebarWalker) addReexport(sidebar *navindex.Sidebar, useItem *RustdocItem) {
	var use useData
	if err := json.Unmarshal(unwrapInner(useItem.Inner, "use"), &use); err != nil {
		return
	}
	if use.IsGlob || use.Glob || use.ID == nil || use.Name == "" {
		return
	}

	if target, ok := w.crate.item(*use.ID); ok {
		if category := itemCategory(target); category != "" {
			sidebar.Add(category, use.Name, target.summary())
		}
		return
	}

	// Items from other crates are not in the index; the paths table still
	// knows their kind.
	if summary, ok := w.crate.Paths[strconv.Itoa(*use.ID)]; ok {
		if category := sidebarCategory[summary.Kind]; category != "" {
			sidebar.Add(category, use.Name, "")
		}
	}
}
