// Package worker implements the specialty-bound worker actor: the run loop
// that dequeues a task, locks its file scope, invokes the LLM, parses the
// response into file edits, commits the result, and reports back to the
// queue (§4.6).
package worker

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FileEdit is a single file a worker must write into its workspace: a path
// and the full content to write there.
type FileEdit struct {
	Path    string
	Content string
}

// FileParser extracts file edits from an LLM's raw response text. The
// response is opaque to the worker itself (§4.6.b) -- file markers are a
// convention each parser is free to define, not a contract the core
// enforces, so a deployment can swap in a different parser per specialty.
type FileParser interface {
	Parse(response string) ([]FileEdit, error)
}

// fileHeadingPattern matches a heading line naming the file that follows,
// e.g. "### FILE: internal/foo/bar.go" or "## File: bar.go".
var fileHeadingPattern = regexp.MustCompile(`(?i)^file:\s*(.+)$`)

// MarkerFileParser is the default FileParser: it walks the goldmark AST of
// the response looking for a heading matching fileHeadingPattern followed,
// before the next heading, by a fenced code block, and takes the first such
// block's contents as the named file's new content. Headings with no
// following code block, or code blocks with no preceding file heading, are
// ignored.
type MarkerFileParser struct {
	markdown goldmark.Markdown
}

// NewMarkerFileParser builds the default heading+fenced-code-block parser.
func NewMarkerFileParser() *MarkerFileParser {
	return &MarkerFileParser{markdown: goldmark.New()}
}

// Parse implements FileParser.
func (p *MarkerFileParser) Parse(response string) ([]FileEdit, error) {
	source := []byte(response)
	doc := p.markdown.Parser().Parse(text.NewReader(source))

	var edits []FileEdit
	var pendingPath string

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := n.(*ast.Heading); ok {
			headingText := extractText(heading, source)
			if m := fileHeadingPattern.FindStringSubmatch(strings.TrimSpace(headingText)); m != nil {
				pendingPath = strings.TrimSpace(m[1])
			} else {
				pendingPath = ""
			}
			return ast.WalkContinue, nil
		}

		if block, ok := n.(*ast.FencedCodeBlock); ok {
			if pendingPath == "" {
				return ast.WalkSkipChildren, nil
			}
			var buf bytes.Buffer
			for i := 0; i < block.Lines().Len(); i++ {
				line := block.Lines().At(i)
				buf.Write(line.Value(source))
			}
			edits = append(edits, FileEdit{Path: pendingPath, Content: buf.String()})
			pendingPath = ""
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk llm response: %w", err)
	}
	if len(edits) == 0 {
		return nil, fmt.Errorf("no file markers found in llm response")
	}
	return edits, nil
}

// extractText concatenates the raw source text spanned by n's children,
// the same inline-text-extraction idiom used when lifting task headings
// out of a plan document.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if seg, ok := c.(*ast.Text); ok {
			buf.Write(seg.Segment.Value(source))
		}
	}
	return buf.String()
}
