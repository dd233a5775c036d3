package navindex

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// loadTimeout bounds how long a single index script may run.
const loadTimeout = 5 * time.Second

var (
	ErrNoSidebar      = errors.New("script did not call initSidebarItems")
	ErrNoImplementors = errors.New("script did not publish implementors")
)

// Page is a sandboxed stand-in for the documentation page that loads index
// scripts. It provides the window object and the initSidebarItems global,
// and plays the consumer side of the implementors handoff.
type Page struct {
	vm      *goja.Runtime
	window  *goja.Object
	sidebar *Sidebar
	onImpl  func(*Implementors)
}

func NewPage() *Page {
	vm := goja.New()
	p := &Page{vm: vm, window: vm.NewObject()}
	vm.Set("window", p.window)
	vm.Set("initSidebarItems", p.initSidebarItems)
	return p
}

// Load runs an index script against the page.
func (p *Page) Load(src []byte) error {
	timer := time.AfterFunc(loadTimeout, func() {
		p.vm.Interrupt("index script timed out")
	})
	defer func() {
		timer.Stop()
		p.vm.ClearInterrupt()
	}()

	if _, err := p.vm.RunString(string(src)); err != nil {
		return fmt.Errorf("evaluating index script: %w", err)
	}
	return nil
}

// Sidebar returns the data passed to the most recent initSidebarItems call.
func (p *Page) Sidebar() *Sidebar {
	return p.sidebar
}

// OnImplementors installs window.register_implementors. Scripts loaded from
// now on hand their data straight to fn; data a script queued earlier is
// delivered immediately.
func (p *Page) OnImplementors(fn func(*Implementors)) error {
	p.onImpl = fn
	if err := p.window.Set("register_implementors", p.registerImplementors); err != nil {
		return fmt.Errorf("installing register_implementors: %w", err)
	}

	pending, err := p.Pending()
	if err != nil {
		return err
	}
	if pending != nil {
		if err := p.window.Delete("pending_implementors"); err != nil {
			return fmt.Errorf("clearing pending_implementors: %w", err)
		}
		fn(pending)
	}
	return nil
}

// Pending returns the implementors a script queued at
// window.pending_implementors, or nil when nothing is waiting.
func (p *Page) Pending() (*Implementors, error) {
	v := p.window.Get("pending_implementors")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return exportImplementors(v)
}

func (p *Page) initSidebarItems(call goja.FunctionCall) goja.Value {
	s, err := exportSidebar(call.Argument(0))
	if err != nil {
		panic(p.vm.NewTypeError(err.Error()))
	}
	p.sidebar = s
	return goja.Undefined()
}

func (p *Page) registerImplementors(call goja.FunctionCall) goja.Value {
	im, err := exportImplementors(call.Argument(0))
	if err != nil {
		panic(p.vm.NewTypeError(err.Error()))
	}
	if p.onImpl != nil {
		p.onImpl(im)
	}
	return goja.Undefined()
}

func exportSidebar(v goja.Value) (*Sidebar, error) {
	raw, ok := v.Export().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("initSidebarItems: argument is %T, want object", v.Export())
	}
	s := NewSidebar()
	for cat, rows := range raw {
		list, ok := rows.([]interface{})
		if !ok {
			return nil, fmt.Errorf("initSidebarItems: category %q is %T, want array", cat, rows)
		}
		for i, row := range list {
			pair, ok := row.([]interface{})
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("initSidebarItems: %s[%d] is not a [name, description] pair", cat, i)
			}
			name, ok1 := pair[0].(string)
			desc, ok2 := pair[1].(string)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("initSidebarItems: %s[%d] has non-string members", cat, i)
			}
			s.Add(cat, name, desc)
		}
	}
	return s, nil
}

func exportImplementors(v goja.Value) (*Implementors, error) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Array" {
		return nil, fmt.Errorf("implementors: value is %T, want object", v.Export())
	}
	im := NewImplementors()
	// Keys follows property creation order, which is the file's crate order.
	for _, crate := range obj.Keys() {
		frags := obj.Get(crate).Export()
		list, ok := frags.([]interface{})
		if !ok {
			return nil, fmt.Errorf("implementors[%q] is %T, want array", crate, frags)
		}
		out := make([]string, 0, len(list))
		for i, f := range list {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("implementors[%q][%d] is %T, want string", crate, i, f)
			}
			out = append(out, s)
		}
		im.Set(crate, out)
	}
	return im, nil
}

// DecodeSidebar evaluates a sidebar-items.js script and returns its data.
func DecodeSidebar(src []byte) (*Sidebar, error) {
	p := NewPage()
	if err := p.Load(src); err != nil {
		return nil, err
	}
	if p.sidebar == nil {
		return nil, ErrNoSidebar
	}
	return p.sidebar, nil
}

// DecodeImplementors evaluates an implementors script on a page with no
// consumer attached and returns what the script queued.
func DecodeImplementors(src []byte) (*Implementors, error) {
	p := NewPage()
	if err := p.Load(src); err != nil {
		return nil, err
	}
	im, err := p.Pending()
	if err != nil {
		return nil, err
	}
	if im == nil {
		return nil, ErrNoImplementors
	}
	return im, nil
}
