package navindex

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
)

const implementorsTrailer = "\n\n" +
	"            if (window.register_implementors) {\n" +
	"                window.register_implementors(implementors);\n" +
	"            } else {\n" +
	"                window.pending_implementors = implementors;\n" +
	"            }\n" +
	"        \n" +
	"})()\n"

// crateKeyRe bounds what may appear inside implementors['...'].
var crateKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// jsString renders s as a double-quoted JS string literal. HTML characters are
// left as-is, because fragments are markup.
func jsString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// EncodeSidebar writes s in rustdoc's sidebar-items.js form. Categories are
// sorted and entries within a category are sorted by name, so equal sidebars
// always encode to equal bytes.
func EncodeSidebar(w io.Writer, s *Sidebar) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("initSidebarItems({")
	for i, cat := range s.Categories() {
		if i > 0 {
			bw.WriteByte(',')
		}
		key, err := jsString(cat)
		if err != nil {
			return fmt.Errorf("encoding category %q: %w", cat, err)
		}
		bw.WriteString(key)
		bw.WriteString(":[")
		for j, e := range s.Entries(cat) {
			if j > 0 {
				bw.WriteByte(',')
			}
			name, err := jsString(e.Name)
			if err != nil {
				return fmt.Errorf("encoding entry %q: %w", e.Name, err)
			}
			desc, err := jsString(e.Desc)
			if err != nil {
				return fmt.Errorf("encoding description of %q: %w", e.Name, err)
			}
			bw.WriteByte('[')
			bw.WriteString(name)
			bw.WriteByte(',')
			bw.WriteString(desc)
			bw.WriteByte(']')
		}
		bw.WriteByte(']')
	}
	bw.WriteString("});")
	return bw.Flush()
}

// EncodeImplementors writes im in rustdoc's implementors/<trait>.js form,
// including the register-or-queue handoff to the page.
func EncodeImplementors(w io.Writer, im *Implementors) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("(function() {var implementors = {};\n")
	for _, crate := range im.Crates() {
		if !crateKeyRe.MatchString(crate) {
			return fmt.Errorf("invalid crate name %q", crate)
		}
		bw.WriteString("implementors['")
		bw.WriteString(crate)
		bw.WriteString("'] = [")
		for _, frag := range im.Fragments(crate) {
			lit, err := jsString(frag)
			if err != nil {
				return fmt.Errorf("encoding fragment for %s: %w", crate, err)
			}
			bw.WriteString(lit)
			bw.WriteByte(',')
		}
		bw.WriteString("];")
	}
	bw.WriteString(implementorsTrailer)
	return bw.Flush()
}

// SidebarBytes is EncodeSidebar into a fresh buffer.
func SidebarBytes(s *Sidebar) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSidebar(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImplementorsBytes is EncodeImplementors into a fresh buffer.
func ImplementorsBytes(im *Implementors) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImplementors(&buf, im); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
