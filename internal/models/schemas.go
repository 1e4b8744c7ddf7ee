package models

// PlanSchema returns the JSON Schema the planner passes to
// claude.Invoker.InvokeWithJSONSchema when asking an LLM to decompose
// requirements text into a Plan.
func PlanSchema() string {
	return `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Plan",
  "type": "object",
  "required": ["project_name", "description", "tasks"],
  "properties": {
    "project_name": { "type": "string" },
    "description": { "type": "string" },
    "estimated_total_hours": { "type": "number" },
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "prompt"],
        "properties": {
          "id": { "type": "string" },
          "name": { "type": "string" },
          "specialty": { "type": "string" },
          "files": { "type": "array", "items": { "type": "string" } },
          "depends_on": { "type": "array", "items": { "type": "string" } },
          "estimated_hours": { "type": "number" },
          "prompt": { "type": "string" },
          "test_commands": { "type": "array", "items": { "type": "string" } }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
}
