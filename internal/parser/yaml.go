package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/harrison/foreman/internal/models"
)

// YAMLParser reads a plan authored as a YAML task list: a top-level
// project_name/description/estimated_total_hours plus a tasks array, the
// same top-level shape the Planner's LLM decomposition path produces (§4.8).
// Tasks name their files as files_to_create/files_to_modify rather than the
// LLM schema's single files list.
type YAMLParser struct{}

func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlTask struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Specialty      string   `yaml:"specialty"`
	FilesToCreate  []string `yaml:"files_to_create"`
	FilesToModify  []string `yaml:"files_to_modify"`
	DependsOn      []interface{} `yaml:"depends_on"`
	EstimatedHours float64  `yaml:"estimated_hours"`
	Prompt         string   `yaml:"prompt"`
	TestCommands   []string `yaml:"test_commands"`
}

type yamlPlan struct {
	ProjectName         string      `yaml:"project_name"`
	Description         string      `yaml:"description"`
	EstimatedTotalHours float64     `yaml:"estimated_total_hours"`
	Tasks               []yamlTask  `yaml:"tasks"`
}

func (p *YAMLParser) Parse(r io.Reader) (*models.Plan, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var doc yamlPlan
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml plan: %w", err)
	}

	plan := &models.Plan{
		ProjectName:         doc.ProjectName,
		Description:         doc.Description,
		EstimatedTotalHours: doc.EstimatedTotalHours,
	}

	for _, yt := range doc.Tasks {
		dependsOn := make([]string, 0, len(yt.DependsOn))
		for _, dep := range yt.DependsOn {
			id, err := models.NormalizeDependency(dep)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", yt.ID, err)
			}
			dependsOn = append(dependsOn, id)
		}

		task := models.Task{
			ID:             yt.ID,
			Name:           yt.Name,
			Description:    yt.Description,
			Specialty:      yt.Specialty,
			FilesToCreate:  yt.FilesToCreate,
			FilesToModify:  yt.FilesToModify,
			DependsOn:      dependsOn,
			EstimatedHours: yt.EstimatedHours,
			Prompt:         yt.Prompt,
			TestCommands:   yt.TestCommands,
		}
		plan.Tasks = append(plan.Tasks, task)
	}

	return plan, nil
}
