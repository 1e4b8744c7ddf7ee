// Package parser loads a Plan (§4.8) from a plan file on disk, authored
// either as Markdown with one "## Task <id>: <name>" section per task or as a YAML
// task list. This is the Planner's import path for hand-authored plans, as
// an alternative to the LLM decomposition path.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/foreman/internal/models"
)

// Format identifies a plan file's on-disk encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatMarkdown
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser reads a plan encoded in one particular format.
type Parser interface {
	Parse(r io.Reader) (*models.Plan, error)
}

// DetectFormat infers a plan's format from its file extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser returns the Parser for a given format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported plan format: %v", format)
	}
}

// ParseFile auto-detects path's format from its extension and parses it
// into a Plan.
func ParseFile(path string) (*models.Plan, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown plan file format: %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan file: %w", err)
	}
	defer f.Close()

	plan, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	return plan, nil
}
