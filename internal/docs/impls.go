package docs

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// implBlock is the subset of a rustdoc Impl needed for an implementor line.
// Older format versions spell the flags without the is_ prefix.
type implBlock struct {
	IsUnsafe    bool             `json:"is_unsafe"`
	Generics    generics         `json:"generics"`
	Trait       *rustPath        `json:"trait"`
	For         json.RawMessage  `json:"for"`
	IsNegative  bool             `json:"is_negative"`
	Negative    bool             `json:"negative"`
	IsSynthetic bool             `json:"is_synthetic"`
	Synthetic   bool             `json:"synthetic"`
	BlanketImpl *json.RawMessage `json:"blanket_impl"`
}

// isBlanket reports an instance of a blanket impl such as
// impl<T> From<T> for T, which rustdoc copies onto every matching local type.
// The generic impl belongs to the crate that declares it.
func (b implBlock) isBlanket() bool {
	return b.BlanketImpl != nil && string(*b.BlanketImpl) != "null"
}

type generics struct {
	Params          []genericParam    `json:"params"`
	WherePredicates []json.RawMessage `json:"where_predicates"`
}

type genericParam struct {
	Name string                     `json:"name"`
	Kind map[string]json.RawMessage `json:"kind"`
}

// BuildImplementors collects, per trait, the impl headers this crate
// contributes. Synthetic (auto trait) impls and blanket impl instances are
// skipped. Fragments within a // trait are ordered by impl ID; traits are ordered by path.
func BuildImplementors(crate *RustdocCrate) []TraitImplementors {
	type implRef struct {
		id    int
		block implBlock
	}

	byTrait := make(map[int][]implRef)
	for key, item := range crate.Index {
		if item.CrateID != 0 {
			continue
		}
		data := unwrapInner(item.Inner, "impl")
		if data == nil {
			continue
		}
		var block implBlock
		if err := json.Unmarshal(data, &block); err != nil || block.Trait == nil {
			continue
		}
		if block.IsSynthetic || block.Synthetic || block.isBlanket() {
			continue
		}
		id, err := strconv.Atoi(key)
		if err != nil {
			id = item.ID
		}
		byTrait[block.Trait.ID] = append(byTrait[block.Trait.ID], implRef{id: id, block: block})
	}

	r := htmlRenderer{crate: crate}
	var traits []TraitImplementors
	for traitID, impls := range byTrait {
		summary, ok := crate.Paths[strconv.Itoa(traitID)]
		if !ok || len(summary.Path) == 0 {
			continue
		}
		sort.Slice(impls, func(i, j int) bool { return impls[i].id < impls[j].id })

		t := TraitImplementors{Path: summary.Path, Kind: summary.Kind}
		for _, ref := range impls {
			t.Fragments = append(t.Fragments, r.implHeader(ref.block))
		}
		traits = append(traits, t)
	}

	sort.Slice(traits, func(i, j int) bool {
		return strings.Join(traits[i].Path, "::") < strings.Join(traits[j].Path, "::")
	})
	return traits
}

// implHeader renders an impl block the way rustdoc lists implementors:
//
//	impl&lt;'a&gt; <a class='trait' ...>Drop</a> for <a class='struct' ...>DiagnosticWrapper</a>&lt;'a&gt;
func (r htmlRenderer) implHeader(b implBlock) string {
	var sb strings.Builder
	if b.IsUnsafe {
		sb.WriteString("unsafe ")
	}
	sb.WriteString("impl")
	if params := r.genericParams(b.Generics.Params); params != "" {
		sb.WriteString("&lt;")
		sb.WriteString(params)
		sb.WriteString("&gt;")
	}
	sb.WriteString(" ")
	if b.IsNegative || b.Negative {
		sb.WriteString("!")
	}
	sb.WriteString(r.path(*b.Trait))
	sb.WriteString(" for ")
	sb.WriteString(r.typ(b.For))
	if where := r.wherePredicates(b.Generics.WherePredicates); where != "" {
		sb.WriteString(" where ")
		sb.WriteString(where)
	}
	return sb.String()
}

func (r htmlRenderer) genericParams(params []genericParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if s := r.genericParam(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func (r htmlRenderer) genericParam(p genericParam) string {
	if lt, ok := p.Kind["lifetime"]; ok {
		var l struct {
			Outlives []string `json:"outlives"`
		}
		json.Unmarshal(lt, &l)
		if len(l.Outlives) > 0 {
			return p.Name + ": " + strings.Join(l.Outlives, " + ")
		}
		return p.Name
	}
	if ty, ok := p.Kind["type"]; ok {
		var t struct {
			Bounds      []json.RawMessage `json:"bounds"`
			IsSynthetic bool              `json:"is_synthetic"`
			Synthetic   bool              `json:"synthetic"`
		}
		if json.Unmarshal(ty, &t) != nil {
			return esc(p.Name)
		}
		// impl Trait arguments desugar to synthetic params that never appear
		// in the written header.
		if t.IsSynthetic || t.Synthetic {
			return ""
		}
		if bounds := r.bounds(t.Bounds); bounds != "" {
			return esc(p.Name) + ": " + bounds
		}
		return esc(p.Name)
	}
	if c, ok := p.Kind["const"]; ok {
		var k struct {
			Type json.RawMessage `json:"type"`
		}
		json.Unmarshal(c, &k)
		return "const " + esc(p.Name) + ": " + r.typ(k.Type)
	}
	return esc(p.Name)
}

func (r htmlRenderer) wherePredicates(preds []json.RawMessage) string {
	parts := make([]string, 0, len(preds))
	for _, raw := range preds {
		var outer map[string]json.RawMessage
		if json.Unmarshal(raw, &outer) != nil {
			continue
		}
		if bp, ok := outer["bound_predicate"]; ok {
			var p struct {
				Type   json.RawMessage   `json:"type"`
				Bounds []json.RawMessage `json:"bounds"`
			}
			if json.Unmarshal(bp, &p) == nil {
				if bounds := r.bounds(p.Bounds); bounds != "" {
					parts = append(parts, r.typ(p.Type)+": "+bounds)
				}
			}
			continue
		}
		if lp, ok := outer["lifetime_predicate"]; ok {
			var p struct {
				Lifetime string   `json:"lifetime"`
				Outlives []string `json:"outlives"`
			}
			if json.Unmarshal(lp, &p) == nil && len(p.Outlives) > 0 {
				parts = append(parts, p.Lifetime+": "+strings.Join(p.Outlives, " + "))
			}
			continue
		}
		if ep, ok := outer["eq_predicate"]; ok {
			var p struct {
				LHS json.RawMessage            `json:"lhs"`
				RHS map[string]json.RawMessage `json:"rhs"`
			}
			if json.Unmarshal(ep, &p) == nil {
				if t, ok := p.RHS["type"]; ok {
					parts = append(parts, r.typ(p.LHS)+" = "+r.typ(t))
				}
			}
		}
	}
	return strings.Join(parts, ", ")
}
