package markdown

import (
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// Summary returns the first paragraph of markdown docs as a single line, the
// way rustdoc shows item descriptions in a sidebar. Inline code keeps its
// backticks; links, emphasis and other inline markup reduce to their text.
func Summary(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	doc := gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))

	var para ast.Node
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if p, ok := node.(*ast.Paragraph); ok {
			para = p
			return ast.Terminate
		}
		return ast.GoToNext
	})
	if para == nil {
		return ""
	}

	var b strings.Builder
	ast.WalkFunc(para, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Code:
			b.WriteString("`")
			b.Write(n.Literal)
			b.WriteString("`")
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteString(" ")
		case *ast.Text:
			b.Write(n.Literal)
		case *ast.HTMLSpan:
			// Inline tags carry no readable text.
		}
		return ast.GoToNext
	})

	return strings.Join(strings.Fields(b.String()), " ")
}
