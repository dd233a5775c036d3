// Package navindex models the two client-side navigation indexes of a rustdoc
// site and converts them to and from the JavaScript files rustdoc emits.
//
// A sidebar index lists a module's items by category:
//
//	initSidebarItems({"fn":[["read_conf","Read the `toml` configuration file."]]});
//
// An implementor index maps crate names to HTML impl headers for one trait,
// and hands the result to window.register_implementors, or queues it at
// window.pending_implementors when no consumer is loaded yet.
package navindex

import "sort"

// Entry is one sidebar row.
type Entry struct {
	Name string
	Desc string
}

// Sidebar groups entries by item category ("struct", "fn", "mod", ...).
type Sidebar struct {
	items map[string][]Entry
}

func NewSidebar() *Sidebar {
	return &Sidebar{items: make(map[string][]Entry)}
}

func (s *Sidebar) Add(category, name, desc string) {
	if s.items == nil {
		s.items = make(map[string][]Entry)
	}
	s.items[category] = append(s.items[category], Entry{Name: name, Desc: desc})
}

// Categories returns the categories in sorted order.
func (s *Sidebar) Categories() []string {
	cats := make([]string, 0, len(s.items))
	for c := range s.items {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Entries returns a category's entries sorted by name.
func (s *Sidebar) Entries(category string) []Entry {
	entries := append([]Entry(nil), s.items[category]...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Len is the total number of entries across categories.
func (s *Sidebar) Len() int {
	n := 0
	for _, e := range s.items {
		n += len(e)
	}
	return n
}

// Implementors maps crate name to the impl-header fragments that crate
// contributes for a single trait. Crates keep the order they were first
// added in, which is the order they are written out.
type Implementors struct {
	crates map[string][]string
	order  []string
}

func NewImplementors() *Implementors {
	return &Implementors{crates: make(map[string][]string)}
}

// Set replaces the fragments contributed by crate. A crate already present
// keeps its position; a new one goes last.
func (im *Implementors) Set(crate string, fragments []string) {
	if im.crates == nil {
		im.crates = make(map[string][]string)
	}
	if _, ok := im.crates[crate]; !ok {
		im.order = append(im.order, crate)
	}
	im.crates[crate] = append([]string(nil), fragments...)
}

// Append adds one fragment to the end of crate's list.
func (im *Implementors) Append(crate, fragment string) {
	if im.crates == nil {
		im.crates = make(map[string][]string)
	}
	if _, ok := im.crates[crate]; !ok {
		im.order = append(im.order, crate)
	}
	im.crates[crate] = append(im.crates[crate], fragment)
}

// Remove drops crate's entry.
func (im *Implementors) Remove(crate string) {
	if _, ok := im.crates[crate]; !ok {
		return
	}
	delete(im.crates, crate)
	for i, c := range im.order {
		if c == crate {
			im.order = append(im.order[:i:i], im.order[i+1:]...)
			break
		}
	}
}

// Has reports whether crate contributes to this trait.
func (im *Implementors) Has(crate string) bool {
	_, ok := im.crates[crate]
	return ok
}

// Crates returns the crate names in insertion order.
func (im *Implementors) Crates() []string {
	return append([]string(nil), im.order...)
}

// Fragments returns crate's fragments in generation order.
func (im *Implementors) Fragments(crate string) []string {
	return im.crates[crate]
}

// Merge copies every crate in other over im, leaving crates other does not
// mention untouched. Crates new to im are appended in other's order.
func (im *Implementors) Merge(other *Implementors) {
	if other == nil {
		return
	}
	for _, c := range other.order {
		im.Set(c, other.crates[c])
	}
}

// Len is the total number of fragments across crates.
func (im *Implementors) Len() int {
	n := 0
	for _, f := range im.crates {
		n += len(f)
	}
	return n
}
