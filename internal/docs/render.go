package docs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// textEscaper escapes rendered Rust syntax for HTML. Apostrophes stay raw so
// lifetimes read 'a, matching rustdoc's own output.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// attrEscaper escapes values placed inside single-quoted attributes.
var attrEscaper = strings.NewReplacer("&", "&amp;", "'", "&#39;", "<", "&lt;", ">", "&gt;")

func esc(s string) string { return textEscaper.Replace(s) }

// htmlRenderer renders rustdoc Type JSON as HTML, turning every item that
// resolves to a page into an anchor.
type htmlRenderer struct {
	crate *RustdocCrate
}

// rustPath is a rustdoc Path. Older format versions name it "name", newer
// ones "path".
type rustPath struct {
	Name string           `json:"name"`
	Path string           `json:"path"`
	ID   int              `json:"id"`
	Args *json.RawMessage `json:"args"`
}

func (p rustPath) display() string {
	s := p.Path
	if s == "" {
		s = p.Name
	}
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	return s
}

func (r htmlRenderer) anchor(id int, fallback string) string {
	link, ok := r.crate.ItemLink(id)
	if !ok {
		return esc(fallback)
	}
	name := link.Name
	if fallback != "" {
		name = fallback
	}
	return fmt.Sprintf("<a class='%s' href='%s' title='%s'>%s</a>",
		link.Class, attrEscaper.Replace(link.Href), attrEscaper.Replace(link.Title), esc(name))
}

// path renders a Path with its generic args, e.g. <a ...>Vec</a>&lt;T&gt;.
func (r htmlRenderer) path(p rustPath) string {
	name := p.display()
	if name == "" {
		if link, ok := r.crate.ItemLink(p.ID); ok {
			name = link.Name
		}
	}
	out := r.anchor(p.ID, name)
	if p.Args != nil {
		out += r.genericArgs(*p.Args)
	}
	return out
}

func (r htmlRenderer) typ(typeJSON json.RawMessage) string {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(typeJSON, &outer); err != nil {
		// Unit variants such as "infer" arrive as bare strings.
		var s string
		if json.Unmarshal(typeJSON, &s) == nil && s == "infer" {
			return "_"
		}
		return ""
	}

	for kind, data := range outer {
		switch kind {
		case "resolved_path":
			var p rustPath
			if json.Unmarshal(data, &p) != nil {
				return ""
			}
			return r.path(p)
		case "primitive", "generic":
			var name string
			if json.Unmarshal(data, &name) != nil {
				return ""
			}
			return esc(name)
		case "dyn_trait":
			return r.dynTrait(data)
		case "impl_trait":
			var bounds []json.RawMessage
			if json.Unmarshal(data, &bounds) != nil {
				return ""
			}
			return "impl " + r.bounds(bounds)
		case "borrowed_ref":
			return r.borrowedRef(data)
		case "raw_pointer":
			var p struct {
				IsMutable bool            `json:"is_mutable"`
				Mutable   bool            `json:"mutable"`
				Type      json.RawMessage `json:"type"`
			}
			if json.Unmarshal(data, &p) != nil {
				return ""
			}
			if p.IsMutable || p.Mutable {
				return "*mut " + r.typ(p.Type)
			}
			return "*const " + r.typ(p.Type)
		case "slice":
			return "[" + r.typ(data) + "]"
		case "array":
			var a struct {
				Type json.RawMessage `json:"type"`
				Len  string          `json:"len"`
			}
			if json.Unmarshal(data, &a) != nil {
				return ""
			}
			return "[" + r.typ(a.Type) + "; " + esc(a.Len) + "]"
		case "tuple":
			var types []json.RawMessage
			if json.Unmarshal(data, &types) != nil {
				return ""
			}
			parts := make([]string, 0, len(types))
			for _, t := range types {
				parts = append(parts, r.typ(t))
			}
			if len(parts) == 1 {
				return "(" + parts[0] + ",)"
			}
			return "(" + strings.Join(parts, ", ") + ")"
		case "qualified_path":
			return r.qualifiedPath(data)
		case "function_pointer":
			return r.functionPointer(data)
		}
	}
	return ""
}

func (r htmlRenderer) genericArgs(argsJSON json.RawMessage) string {
	var args struct {
		AngleBracketed *struct {
			Args        []json.RawMessage `json:"args"`
			Constraints []json.RawMessage `json:"constraints"`
			Bindings    []json.RawMessage `json:"bindings"`
		} `json:"angle_bracketed"`
		Parenthesized *struct {
			Inputs []json.RawMessage `json:"inputs"`
			Output json.RawMessage   `json:"output"`
		} `json:"parenthesized"`
	}
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return ""
	}

	if p := args.Parenthesized; p != nil {
		parts := make([]string, 0, len(p.Inputs))
		for _, in := range p.Inputs {
			parts = append(parts, r.typ(in))
		}
		out := "(" + strings.Join(parts, ", ") + ")"
		if ret := r.typ(p.Output); ret != "" {
			out += " -&gt; " + ret
		}
		return out
	}

	ab := args.AngleBracketed
	if ab == nil {
		return ""
	}
	var parts []string
	for _, arg := range ab.Args {
		var a map[string]json.RawMessage
		if err := json.Unmarshal(arg, &a); err != nil {
			parts = append(parts, "_")
			continue
		}
		if t, ok := a["type"]; ok {
			if s := r.typ(t); s != "" {
				parts = append(parts, s)
			}
		} else if lt, ok := a["lifetime"]; ok {
			var s string
			if json.Unmarshal(lt, &s) == nil {
				parts = append(parts, s)
			}
		} else if c, ok := a["const"]; ok {
			var k struct {
				Expr string `json:"expr"`
			}
			if json.Unmarshal(c, &k) == nil {
				parts = append(parts, esc(k.Expr))
			}
		}
	}
	constraints := ab.Constraints
	if len(constraints) == 0 {
		constraints = ab.Bindings
	}
	for _, c := range constraints {
		if s := r.assocConstraint(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "&lt;" + strings.Join(parts, ", ") + "&gt;"
}

// assocConstraint renders Item = Type or Item: Bound.
func (r htmlRenderer) assocConstraint(c json.RawMessage) string {
	var ac struct {
		Name    string                     `json:"name"`
		Binding map[string]json.RawMessage `json:"binding"`
	}
	if err := json.Unmarshal(c, &ac); err != nil || ac.Name == "" {
		return ""
	}
	if eq, ok := ac.Binding["equality"]; ok {
		var term map[string]json.RawMessage
		if json.Unmarshal(eq, &term) == nil {
			if t, ok := term["type"]; ok {
				return esc(ac.Name) + " = " + r.typ(t)
			}
		}
	}
	if c, ok := ac.Binding["constraint"]; ok {
		var bounds []json.RawMessage
		if json.Unmarshal(c, &bounds) == nil {
			return esc(ac.Name) + ": " + r.bounds(bounds)
		}
	}
	return esc(ac.Name)
}

// bounds renders a GenericBound list joined by " + ".
func (r htmlRenderer) bounds(bounds []json.RawMessage) string {
	parts := make([]string, 0, len(bounds))
	for _, b := range bounds {
		if s := r.bound(b); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " + ")
}

func (r htmlRenderer) bound(b json.RawMessage) string {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(b, &outer); err != nil {
		return ""
	}
	if tb, ok := outer["trait_bound"]; ok {
		var t struct {
			Trait    rustPath `json:"trait"`
			Modifier string   `json:"modifier"`
		}
		if json.Unmarshal(tb, &t) != nil {
			return ""
		}
		prefix := ""
		switch t.Modifier {
		case "maybe":
			prefix = "?"
		case "maybe_const":
			prefix = "~const "
		}
		return prefix + r.path(t.Trait)
	}
	if lt, ok := outer["outlives"]; ok {
		var s string
		if json.Unmarshal(lt, &s) == nil {
			return s
		}
	}
	return ""
}

func (r htmlRenderer) dynTrait(data json.RawMessage) string {
	var d struct {
		Traits []struct {
			Trait rustPath `json:"trait"`
		} `json:"traits"`
		Lifetime *string `json:"lifetime"`
	}
	if err := json.Unmarshal(data, &d); err != nil || len(d.Traits) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d.Traits)+1)
	for _, t := range d.Traits {
		parts = append(parts, r.path(t.Trait))
	}
	if d.Lifetime != nil && *d.Lifetime != "" {
		parts = append(parts, *d.Lifetime)
	}
	return "dyn " + strings.Join(parts, " + ")
}

func (r htmlRenderer) borrowedRef(data json.RawMessage) string {
	var br struct {
		Lifetime  *string         `json:"lifetime"`
		IsMutable bool            `json:"is_mutable"`
		Mutable   bool            `json:"mutable"`
		Type      json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &br); err != nil {
		return ""
	}
	out := "&amp;"
	if br.Lifetime != nil && *br.Lifetime != "" {
		out += *br.Lifetime + " "
	}
	if br.IsMutable || br.Mutable {
		out += "mut "
	}
	return out + r.typ(br.Type)
}

func (r htmlRenderer) qualifiedPath(data json.RawMessage) string {
	var q struct {
		Name     string          `json:"name"`
		SelfType json.RawMessage `json:"self_type"`
		Trait    *rustPath       `json:"trait"`
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return ""
	}
	self := r.typ(q.SelfType)
	if q.Trait != nil && q.Trait.display() != "" {
		return fmt.Sprintf("&lt;%s as %s&gt;::%s", self, r.path(*q.Trait), esc(q.Name))
	}
	return self + "::" + esc(q.Name)
}

func (r htmlRenderer) functionPointer(data json.RawMessage) string {
	var fp struct {
		Sig struct {
			Inputs []json.RawMessage `json:"inputs"`
			Output json.RawMessage   `json:"output"`
		} `json:"sig"`
		Decl *struct {
			Inputs []json.RawMessage `json:"inputs"`
			Output json.RawMessage   `json:"output"`
		} `json:"decl"`
	}
	if err := json.Unmarshal(data, &fp); err != nil {
		return ""
	}
	inputs, output := fp.Sig.Inputs, fp.Sig.Output
	if fp.Decl != nil {
		inputs, output = fp.Decl.Inputs, fp.Decl.Output
	}
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		var pair []json.RawMessage
		if json.Unmarshal(in, &pair) != nil || len(pair) < 2 {
			continue
		}
		parts = append(parts, r.typ(pair[1]))
	}
	out := "fn(" + strings.Join(parts, ", ") + ")"
	if ret := r.typ(output); ret != "" {
		out += " -&gt; " + ret
	}
	return out
}
