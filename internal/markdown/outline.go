// Package markdown extracts the heading outline of converted page markdown.
package markdown

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// DefaultMaxDepth is the deepest heading level included in header paths.
const DefaultMaxDepth = 3

// Heading is a markdown heading located in its source text.
type Heading struct {
	Offset     int    // Byte offset of the heading text in the source
	HeaderPath string // Hierarchy: "# Chapter > ## Section"
}

// Outliner parses page markdown with goldmark and reports its headings.
type Outliner struct {
	parser   goldmark.Markdown
	maxDepth int
}

// NewOutliner creates an outliner covering headings up to DefaultMaxDepth.
func NewOutliner() *Outliner {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Outliner{
		parser:   md,
		maxDepth: DefaultMaxDepth,
	}
}

// Outline returns the headings of source ordered by offset.
// A source without headings yields an empty outline.
func (o *Outliner) Outline(source []byte) ([]Heading, error) {
	doc := o.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(o.maxDepth),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}
	if len(tree.Items) == 0 {
		return nil, nil
	}

	nodes := headingsByID(doc)
	var headings []Heading
	collect(nodes, tree.Items, nil, &headings)

	sort.SliceStable(headings, func(i, j int) bool { return headings[i].Offset < headings[j].Offset })
	return headings, nil
}

// collect walks TOC items depth first, resolving each to its heading node.
func collect(nodes map[string]*ast.Heading, items toc.Items, ancestors []string, out *[]Heading) {
	for _, item := range items {
		current := append(append([]string(nil), ancestors...), string(item.Title))

		if node, ok := nodes[string(item.ID)]; ok && node.Lines().Len() > 0 {
			*out = append(*out, Heading{
				Offset:     node.Lines().At(0).Start,
				HeaderPath: formatHeaderPath(current),
			})
		}

		if len(item.Items) > 0 {
			collect(nodes, item.Items, current, out)
		}
	}
}

// headingsByID indexes heading nodes by their auto-generated ID.
func headingsByID(doc ast.Node) map[string]*ast.Heading {
	nodes := make(map[string]*ast.Heading)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		heading := n.(*ast.Heading)
		if id, ok := heading.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				nodes[string(b)] = heading
			}
		}
		return ast.WalkContinue, nil
	})
	return nodes
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Fever", "Causes"] -> "# Fever > ## Causes"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// SectionAt returns the header path of the last heading starting before offset.
func SectionAt(headings []Heading, offset int) string {
	section := ""
	for _, h := range headings {
		if h.Offset >= offset {
			break
		}
		section = h.HeaderPath
	}
	return section
}
