package assistant

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Prompts are the fixed texts of the assistant. Placeholders in braces are
// filled per turn.
type Prompts struct {
	System   string `yaml:"system"`
	Help     string `yaml:"help"`
	Greeting string `yaml:"greeting"`
	Fallback string `yaml:"fallback"`
	Apology  string `yaml:"apology"`
	Reset    string `yaml:"reset"`
	Media    string `yaml:"media"`
}

// LoadPrompts parses the embedded prompt file.
func LoadPrompts() (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(promptsYAML, &p); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts: %w", err)
	}
	for name, text := range map[string]string{"system": p.System, "help": p.Help, "fallback": p.Fallback, "apology": p.Apology} {
		if strings.TrimSpace(text) == "" {
			return Prompts{}, fmt.Errorf("prompt %q is empty", name)
		}
	}
	p.Help = strings.TrimSpace(p.Help)
	return p, nil
}

// MustLoadPrompts is LoadPrompts for package initialization.
func MustLoadPrompts() Prompts {
	p, err := LoadPrompts()
	if err != nil {
		panic(err)
	}
	return p
}

func fill(text string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
