package navindex

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	gohtml "golang.org/x/net/html"
)

// Options tunes validation strictness.
type Options struct {
	// AllowUndocumented reports empty sidebar descriptions as warnings
	// instead of errors. rustdoc emits "" for undocumented items.
	AllowUndocumented bool
}

// Problem is one validation finding.
type Problem struct {
	Where   string
	Message string
	Warning bool
}

func (p Problem) String() string {
	level := "error"
	if p.Warning {
		level = "warning"
	}
	return fmt.Sprintf("%s: %s: %s", level, p.Where, p.Message)
}

// Errors joins the non-warning problems into a single error, or returns nil.
func Errors(problems []Problem) error {
	var errs []error
	for _, p := range problems {
		if !p.Warning {
			errs = append(errs, errors.New(p.Where+": "+p.Message))
		}
	}
	return errors.Join(errs...)
}

// ValidateSidebar checks that every entry is a non-empty (name, description)
// pair.
func ValidateSidebar(s *Sidebar, opts Options) []Problem {
	var problems []Problem
	for _, cat := range s.Categories() {
		if cat == "" {
			problems = append(problems, Problem{Where: "sidebar", Message: "empty category name"})
		}
		for i, e := range s.Entries(cat) {
			where := fmt.Sprintf("%s[%d]", cat, i)
			if strings.TrimSpace(e.Name) == "" {
				problems = append(problems, Problem{Where: where, Message: "empty item name"})
				continue
			}
			if strings.TrimSpace(e.Desc) == "" {
				problems = append(problems, Problem{
					Where:   cat + " " + e.Name,
					Message: "empty description",
					Warning: opts.AllowUndocumented,
				})
			}
		}
	}
	return problems
}

// ValidateImplementors checks every fragment of every crate.
func ValidateImplementors(im *Implementors) []Problem {
	var problems []Problem
	for _, crate := range im.Crates() {
		if !crateKeyRe.MatchString(crate) {
			problems = append(problems, Problem{Where: crate, Message: "invalid crate name"})
		}
		for i, frag := range im.Fragments(crate) {
			if err := ValidateFragment(frag); err != nil {
				problems = append(problems, Problem{
					Where:   fmt.Sprintf("%s[%d]", crate, i),
					Message: err.Error(),
				})
			}
		}
	}
	return problems
}

// voidElements never take an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// ValidateFragment reports whether an implementor fragment is balanced markup
// containing at least one <a href> anchor.
func ValidateFragment(fragment string) error {
	if strings.TrimSpace(fragment) == "" {
		return errors.New("empty fragment")
	}

	z := gohtml.NewTokenizer(strings.NewReader(fragment))
	var open []string
	for {
		tt := z.Next()
		switch tt {
		case gohtml.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("tokenizing fragment: %w", err)
			}
			if len(open) > 0 {
				return fmt.Errorf("unclosed <%s>", open[len(open)-1])
			}
			return checkAnchors(fragment)
		case gohtml.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				open = append(open, string(name))
			}
		case gohtml.EndTagToken:
			name, _ := z.TagName()
			if len(open) == 0 {
				return fmt.Errorf("unexpected </%s>", name)
			}
			if top := open[len(open)-1]; top != string(name) {
				return fmt.Errorf("</%s> closes <%s>", name, top)
			}
			open = open[:len(open)-1]
		}
	}
}

func checkAnchors(fragment string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fmt.Errorf("parsing fragment: %w", err)
	}
	if doc.Find("a[href]").Length() == 0 {
		return errors.New("no anchor in fragment")
	}
	return nil
}

// Link is one anchor of a fragment.
type Link struct {
	Class string `json:"class,omitempty"`
	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// FragmentText returns the text a reader sees, with entities decoded, e.g.
// "impl<'a> Drop for DiagnosticWrapper<'a>".
func FragmentText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}

// FragmentLinks lists a fragment's anchors in document order.
func FragmentLinks(fragment string) []Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		class, _ := s.Attr("class")
		title, _ := s.Attr("title")
		links = append(links, Link{Class: class, Href: href, Title: title, Text: s.Text()})
	})
	return links
}
