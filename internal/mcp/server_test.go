package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/rpc"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeLedger struct {
	items      []db.Item
	impls      []db.Implementor
	builds     []db.Build
	latestOnly bool
	query      string
	limit      int
}

func (f *fakeLedger) FindItems(query string, limit int) ([]db.Item, error) {
	f.query, f.limit = query, limit
	return f.items, nil
}

func (f *fakeLedger) ImplementorsOf(trait string) ([]db.Implementor, error) {
	return f.impls, nil
}

func (f *fakeLedger) ListBuilds(latestOnly bool) ([]db.Build, error) {
	f.latestOnly = latestOnly
	return f.builds, nil
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("got %d content blocks", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return res, text.Text
}

func TestSearchItems(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{items: []db.Item{
		{Crate: "clippy", Module: "clippy::utils", Category: "struct", Name: "LimitStack"},
	}}
	s := NewServer(ledger, "test")

	res, text := call(t, s.handleSearchItems, map[string]any{"query": "limit", "limit": float64(5)})
	if res.IsError {
		t.Fatal(text)
	}
	if ledger.query != "limit" || ledger.limit != 5 {
		t.Errorf("ledger called with %q, %d", ledger.query, ledger.limit)
	}
	var got []rpc.ItemResult
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "LimitStack" || got[0].Module != "clippy::utils" {
		t.Errorf("results = %+v", got)
	}

	res, _ = call(t, s.handleSearchItems, map[string]any{})
	if !res.IsError {
		t.Error("expected error without query")
	}
}

func TestListImplementors(t *testing.T) {
	t.Parallel()
	frag := "impl&lt;'a&gt; <a class='trait' href='https://doc.rust-lang.org/nightly/core/ops/trait.Drop.html' title='core::ops::Drop'>Drop</a> for " +
		"<a class='struct' href='clippy/utils/struct.DiagnosticWrapper.html' title='clippy::utils::DiagnosticWrapper'>DiagnosticWrapper</a>&lt;'a&gt;"
	ledger := &fakeLedger{impls: []db.Implementor{{Crate: "clippy", Trait: "core::ops::Drop", Fragment: frag}}}
	s := NewServer(ledger, "test")

	res, text := call(t, s.handleListImplementors, map[string]any{"trait": "Drop"})
	if res.IsError {
		t.Fatal(text)
	}
	var got []rpc.ImplementorResult
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("results = %+v", got)
	}
	if got[0].Header != "impl<'a> Drop for DiagnosticWrapper<'a>" {
		t.Errorf("header = %q", got[0].Header)
	}
	if len(got[0].Links) != 2 || got[0].Links[1].Title != "clippy::utils::DiagnosticWrapper" {
		t.Errorf("links = %+v", got[0].Links)
	}
}

func TestListBuilds(t *testing.T) {
	t.Parallel()
	ledger := &fakeLedger{builds: []db.Build{{Crate: "clippy", Version: "0.0.1", BuiltAt: time.Unix(0, 0).UTC(), Artifacts: 4}}}
	s := NewServer(ledger, "test")

	_, text := call(t, s.handleListBuilds, nil)
	if !ledger.latestOnly {
		t.Error("default should list latest builds only")
	}
	var got []rpc.BuildStatus
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Artifacts != 4 {
		t.Errorf("results = %+v", got)
	}

	call(t, s.handleListBuilds, map[string]any{"all": true})
	if ledger.latestOnly {
		t.Error("all=true should include superseded builds")
	}
}
