package sms

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultDispatchTemplate = "URGENT: {{.Hospital}} needs {{.BloodGroup}} blood ({{.Units}} unit{{if ne .Units 1}}s{{end}}, {{.Urgency}}). " +
	"Tell us if you can help: {{.Link}}"

type TemplatesConfig struct {
	Dispatch string `yaml:"dispatch" json:"dispatch"`
}

// DispatchMessage is the data available to the dispatch template.
type DispatchMessage struct {
	Hospital   string
	BloodGroup string
	Units      int
	Urgency    string
	Link       string
}

type Templates struct {
	dispatch *template.Template
}

func DefaultTemplates() *Templates {
	t, err := compile(TemplatesConfig{Dispatch: defaultDispatchTemplate})
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplates reads a YAML file of message templates. An empty path yields the defaults.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultTemplates(), err
	}

	var cfg TemplatesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}
	if cfg.Dispatch == "" {
		return nil, errors.New("dispatch template missing")
	}
	return compile(cfg)
}

func compile(cfg TemplatesConfig) (*Templates, error) {
	dispatch, err := template.New("dispatch").Option("missingkey=error").Parse(cfg.Dispatch)
	if err != nil {
		return nil, fmt.Errorf("parsing dispatch template: %w", err)
	}
	return &Templates{dispatch: dispatch}, nil
}

func (t *Templates) RenderDispatch(msg DispatchMessage) (string, error) {
	var buf bytes.Buffer
	if err := t.dispatch.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("rendering dispatch message: %w", err)
	}
	return buf.String(), nil
}
