package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptPack []byte

// Prompts holds the templates for clarification and specialist analysis.
// Templates use {name} placeholders.
type Prompts struct {
	Clarifier       string `yaml:"clarifier"`
	SchemaAnalysis  string `yaml:"schema_analysis"`
	TechnicalDesign string `yaml:"technical_design"`
	TaskPlanning    string `yaml:"task_planning"`
	SinglePass      string `yaml:"single_pass"`
}

// DefaultPrompts returns the embedded prompt pack.
func DefaultPrompts() (*Prompts, error) {
	return parsePrompts(defaultPromptPack)
}

// LoadPrompts reads a prompt pack from disk, allowing operators to override
// the embedded defaults.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt pack: %w", err)
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompt pack: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prompts) validate() error {
	missing := []string{}
	for name, tmpl := range map[string]string{
		"clarifier":        p.Clarifier,
		"schema_analysis":  p.SchemaAnalysis,
		"technical_design": p.TechnicalDesign,
		"task_planning":    p.TaskPlanning,
		"single_pass":      p.SinglePass,
	} {
		if strings.TrimSpace(tmpl) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("prompt pack missing templates: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RenderClarifier builds the clarification prompt for a requirement with the
// recent conversation as context.
func (p *Prompts) RenderClarifier(requirement, conversation string) string {
	return render(p.Clarifier, map[string]string{
		"requirement":  requirement,
		"conversation": conversation,
	})
}

// render substitutes {name} placeholders in a template.
func render(tmpl string, vars map[string]string) string {
	out := tmpl
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
