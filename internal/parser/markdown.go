package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/foreman/internal/models"
)

// MarkdownParser reads a plan authored as Markdown: an H1 title, an
// optional description paragraph, then one H2 section per task
// ("## Task <id>: <name>"), with "- Label: value" annotation lines for the
// task's structured fields and the remaining prose as its prompt.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{markdown: goldmark.New()}
}

var taskHeadingPattern = regexp.MustCompile(`(?i)^Task\s+(\S+):\s*(.+)$`)

func (p *MarkdownParser) Parse(r io.Reader) (*models.Plan, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))
	plan := &models.Plan{}

	var currentTask *models.Task
	var body strings.Builder
	var sawTitle bool

	flush := func() {
		if currentTask == nil {
			return
		}
		content := body.String()
		applyTaskAnnotations(currentTask, content)
		currentTask.Prompt = strings.TrimSpace(stripAnnotations(content))
		plan.Tasks = append(plan.Tasks, *currentTask)
		currentTask = nil
		body.Reset()
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headingText := extractText(node, source)
			if node.Level == 1 && !sawTitle {
				plan.ProjectName = headingText
				sawTitle = true
				return ast.WalkSkipChildren, nil
			}
			if node.Level == 2 {
				if m := taskHeadingPattern.FindStringSubmatch(headingText); m != nil {
					flush()
					currentTask = &models.Task{ID: m[1], Name: strings.TrimSpace(m[2])}
					return ast.WalkSkipChildren, nil
				}
				flush()
				return ast.WalkSkipChildren, nil
			}
		case *ast.Paragraph:
			paraText := extractText(node, source)
			if currentTask == nil {
				if plan.Description == "" && sawTitle {
					plan.Description = paraText
				}
				return ast.WalkSkipChildren, nil
			}
			body.WriteString(paraText)
			body.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.List:
			if currentTask != nil {
				body.WriteString(extractListText(node, source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	flush()

	return plan, nil
}

func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

func extractListText(list *ast.List, source []byte) string {
	var sb strings.Builder
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			sb.WriteString("- ")
			sb.WriteString(extractText(child, source))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

var (
	specialtyPattern  = regexp.MustCompile(`(?i)-\s*Specialty:\s*(\S+)`)
	dependsOnPattern  = regexp.MustCompile(`(?i)-\s*Depends on:\s*(.+)`)
	hoursPattern      = regexp.MustCompile(`(?i)-\s*Estimated hours:\s*([\d.]+)`)
	filesCreatePattern = regexp.MustCompile(`(?i)-\s*Files to create:\s*(.+)`)
	filesModifyPattern = regexp.MustCompile(`(?i)-\s*Files to modify:\s*(.+)`)
	testCommandsPattern = regexp.MustCompile(`(?i)-\s*Test commands:\s*(.+)`)
)

// applyTaskAnnotations scans a task section's body for "- Label: value"
// annotation lines and fills in the corresponding Task fields.
func applyTaskAnnotations(task *models.Task, content string) {
	if m := specialtyPattern.FindStringSubmatch(content); m != nil {
		task.Specialty = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := dependsOnPattern.FindStringSubmatch(content); m != nil {
		task.DependsOn = splitCommaList(m[1])
	}
	if m := hoursPattern.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			task.EstimatedHours = v
		}
	}
	if m := filesCreatePattern.FindStringSubmatch(content); m != nil {
		task.FilesToCreate = splitCommaList(m[1])
	}
	if m := filesModifyPattern.FindStringSubmatch(content); m != nil {
		task.FilesToModify = splitCommaList(m[1])
	}
	if m := testCommandsPattern.FindStringSubmatch(content); m != nil {
		task.TestCommands = splitCommaList(m[1])
	}
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.Trim(part, "`"))
		if part != "" && !strings.EqualFold(part, "none") {
			out = append(out, part)
		}
	}
	return out
}

var annotationLinePattern = regexp.MustCompile(`(?i)^-\s*(Specialty|Depends on|Estimated hours|Files to create|Files to modify|Test commands):.*$`)

// stripAnnotations removes the "- Label: value" lines from a task's body,
// leaving the prose that becomes its prompt.
func stripAnnotations(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if annotationLinePattern.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
