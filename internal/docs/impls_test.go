package docs

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/jcdickinson/ferrisnav/internal/navindex"
)

const dropAnchor = "<a class='trait' href='https://doc.rust-lang.org/nightly/core/ops/trait.Drop.html' title='core::ops::Drop'>Drop</a>"

func TestBuildImplementors(t *testing.T) {
	t.Parallel()

	traits := BuildImplementors(clippyCrate())
	if len(traits) != 1 {
		t.Fatalf("got %d traits, want 1 (synthetic, blanket and foreign impls skipped)", len(traits))
	}
	drop := traits[0]
	if !reflect.DeepEqual(drop.Path, []string{"core", "ops", "Drop"}) || drop.Kind != "trait" {
		t.Errorf("trait = %v %s", drop.Path, drop.Kind)
	}

	want := []string{
		"impl&lt;'a&gt; " + dropAnchor + " for <a class='struct' href='clippy/utils/struct.DiagnosticWrapper.html' title='clippy::utils::DiagnosticWrapper'>DiagnosticWrapper</a>&lt;'a&gt;",
		"impl " + dropAnchor + " for <a class='struct' href='clippy/utils/struct.LimitStack.html' title='clippy::utils::LimitStack'>LimitStack</a>",
	}
	if !reflect.DeepEqual(drop.Fragments, want) {
		t.Errorf("fragments:\n got %q\nwant %q", drop.Fragments, want)
	}
	for _, f := range drop.Fragments {
		if err := navindex.ValidateFragment(f); err != nil {
			t.Errorf("fragment %q: %v", f, err)
		}
	}
}

func TestImplBlock_IsBlanket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		json string
		want bool
	}{
		{`{"blanket_impl":{"generic":"T"}}`, true},
		{`{"blanket_impl":null}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var b implBlock
		if err := json.Unmarshal([]byte(tt.json), &b); err != nil {
			t.Fatal(err)
		}
		if got := b.isBlanket(); got != tt.want {
			t.Errorf("isBlanket(%s) = %v, want %v", tt.json, got, tt.want)
		}
	}
}

func TestImplHeader_BoundedParams(t *testing.T) {
	t.Parallel()

	// impl<'a, 'b, W: 'a + Write, EW: 'b + ExtWrite> Drop for CompW<'a, 'b, W, EW>
	crate := &RustdocCrate{
		Paths: map[string]RustdocSummary{
			"1": {CrateID: 0, Path: []string{"readwrite_comp", "CompW"}, Kind: "struct"},
			"2": {CrateID: 0, Path: []string{"readwrite_comp", "ExtWrite"}, Kind: "trait"},
			"3": {CrateID: 2, Path: []string{"std", "io", "Write"}, Kind: "trait"},
			"4": {CrateID: 1, Path: []string{"core", "ops", "Drop"}, Kind: "trait"},
		},
		ExternalCrates: map[string]ExternalCrate{
			"1": {Name: "core"},
			"2": {Name: "std"},
		},
	}
	var block implBlock
	err := json.Unmarshal([]byte(`{
		"generics":{"params":[
			{"name":"'a","kind":{"lifetime":{"outlives":[]}}},
			{"name":"'b","kind":{"lifetime":{"outlives":[]}}},
			{"name":"W","kind":{"type":{"bounds":[{"outlives":"'a"},{"trait_bound":{"trait":{"path":"Write","id":3,"args":null},"generic_params":[],"modifier":"none"}}],"default":null,"is_synthetic":false}}},
			{"name":"EW","kind":{"type":{"bounds":[{"outlives":"'b"},{"trait_bound":{"trait":{"path":"ExtWrite","id":2,"args":null},"generic_params":[],"modifier":"none"}}],"default":null,"is_synthetic":false}}}
		],"where_predicates":[]},
		"trait":{"path":"Drop","id":4,"args":null},
		"for":{"resolved_path":{"path":"CompW","id":1,"args":{"angle_bracketed":{"args":[{"lifetime":"'a"},{"lifetime":"'b"},{"type":{"generic":"W"}},{"type":{"generic":"EW"}}],"constraints":[]}}}}
	}`), &block)
	if err != nil {
		t.Fatal(err)
	}

	got := htmlRenderer{crate: crate}.implHeader(block)
	want := "impl&lt;'a, 'b, W: 'a + <a class='trait' href='https://doc.rust-lang.org/nightly/std/io/trait.Write.html' title='std::io::Write'>Write</a>, " +
		"EW: 'b + <a class='trait' href='readwrite_comp/trait.ExtWrite.html' title='readwrite_comp::ExtWrite'>ExtWrite</a>&gt; " +
		dropAnchor +
		" for <a class='struct' href='readwrite_comp/struct.CompW.html' title='readwrite_comp::CompW'>CompW</a>&lt;'a, 'b, W, EW&gt;"
	if got != want {
		t.Errorf("implHeader:\n got %s\nwant %s", got, want)
	}
}

func TestImplHeader_Modifiers(t *testing.T) {
	t.Parallel()

	crate := &RustdocCrate{
		Paths: map[string]RustdocSummary{
			"1": {CrateID: 0, Path: []string{"demo", "Token"}, Kind: "struct"},
			"2": {CrateID: 0, Path: []string{"demo", "Marker"}, Kind: "trait"},
		},
	}
	tests := []struct {
		name  string
		block string
		want  string
	}{
		{
			name:  "unsafe",
			block: `{"is_unsafe":true,"trait":{"path":"Marker","id":2},"for":{"resolved_path":{"path":"Token","id":1}}}`,
			want:  "unsafe impl <a class='trait' href='demo/trait.Marker.html' title='demo::Marker'>Marker</a> for <a class='struct' href='demo/struct.Token.html' title='demo::Token'>Token</a>",
		},
		{
			name:  "negative",
			block: `{"is_negative":true,"trait":{"path":"Marker","id":2},"for":{"resolved_path":{"path":"Token","id":1}}}`,
			want:  "impl !<a class='trait' href='demo/trait.Marker.html' title='demo::Marker'>Marker</a> for <a class='struct' href='demo/struct.Token.html' title='demo::Token'>Token</a>",
		},
		{
			name: "reference with where clause",
			block: `{"generics":{"params":[{"name":"T","kind":{"type":{"bounds":[]}}}],"where_predicates":[
				{"bound_predicate":{"type":{"generic":"T"},"bounds":[{"trait_bound":{"trait":{"path":"Marker","id":2},"modifier":"none"}}]}}]},
				"trait":{"path":"Marker","id":2},
				"for":{"borrowed_ref":{"lifetime":null,"is_mutable":true,"type":{"generic":"T"}}}}`,
			want: "impl&lt;T&gt; <a class='trait' href='demo/trait.Marker.html' title='demo::Marker'>Marker</a> for &amp;mut T where T: <a class='trait' href='demo/trait.Marker.html' title='demo::Marker'>Marker</a>",
		},
		{
			name:  "unresolved trait",
			block: `{"trait":{"path":"Hidden","id":99},"for":{"tuple":[{"primitive":"u8"},{"primitive":"u16"}]}}`,
			want:  "impl Hidden for (u8, u16)",
		},
	}
	r := htmlRenderer{crate: crate}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var block implBlock
			if err := json.Unmarshal([]byte(tt.block), &block); err != nil {
				t.Fatal(err)
			}
			if got := r.implHeader(block); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}
