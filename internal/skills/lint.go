// ABOUTME: Structural lint for a bundle's skill.md document
// ABOUTME: Walks the markdown AST checking the title heading and section bodies

package skills

import (
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// LintDoc checks the structural shape of a skill document: the first block
// must be a level-1 title heading with text, and every heading must be
// followed by body content before the next heading. Prose quality is not
// checked here.
func LintDoc(source []byte) error {
	if len(source) == 0 {
		return fmt.Errorf("%s is empty", DocFile)
	}

	document := goldmark.New().Parser().Parse(text.NewReader(source))

	first := document.FirstChild()
	if first == nil {
		return fmt.Errorf("%s has no content", DocFile)
	}
	title, ok := first.(*ast.Heading)
	if !ok || title.Level != 1 {
		return fmt.Errorf("%s must start with a level-1 title heading", DocFile)
	}
	if len(headingText(title, source)) == 0 {
		return fmt.Errorf("%s title heading is empty", DocFile)
	}

	// Every heading needs at least one body block before the next heading.
	for node := document.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok {
			continue
		}
		next := node.NextSibling()
		if next == nil {
			return fmt.Errorf("section %q has no body", string(headingText(heading, source)))
		}
		if _, isHeading := next.(*ast.Heading); isHeading {
			return fmt.Errorf("section %q has no body", string(headingText(heading, source)))
		}
	}
	return nil
}

func headingText(h *ast.Heading, source []byte) []byte {
	var out []byte
	for child := h.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
		}
	}
	return out
}
