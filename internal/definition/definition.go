// Package definition loads workflow definition files. YAML and HCL files
// describe the same structure: a name, a global task, agents and the
// dependencies between them.
package definition

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"gopkg.in/yaml.v3"
)

// Format identifies the syntax of a definition file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// File is the decoded content of a definition file.
//
// In HCL, agents and dependencies are blocks:
//
//	name        = "planner"
//	global_task = "Plan a weekend trip"
//
//	agent "A1" {
//	  model             = "distilgpt2"
//	  max_output_length = 50
//	}
//
//	dependency {
//	  source = "A1"
//	  target = "A2"
//	}
type File struct {
	Name         string              `yaml:"name" hcl:"name,optional"`
	GlobalTask   string              `yaml:"global_task" hcl:"global_task,optional"`
	Agents       []models.Agent      `yaml:"agents" hcl:"agent,block"`
	Dependencies []models.Dependency `yaml:"dependencies" hcl:"dependency,block"`
}

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", errors.Errorf("unsupported workflow file extension %q (want .yaml, .yml or .hcl)", filepath.Ext(path))
	}
}

// Load reads and decodes a definition file, then builds its workflow.
func Load(path string) (*engine.Workflow, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read workflow file %s", path)
	}
	f, err := Parse(data, filepath.Base(path), format)
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f.Workflow()
}

// Parse decodes data in the given format. filename is only used in
// diagnostics.
func Parse(data []byte, filename string, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Wrapf(err, "decode YAML workflow %s", filename)
		}
	case FormatHCL:
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, filename)
		if diags.HasErrors() {
			return nil, errors.Wrapf(diags, "parse HCL workflow %s", filename)
		}
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
			return nil, errors.Wrapf(diags, "decode HCL workflow %s", filename)
		}
	default:
		return nil, errors.Errorf("unsupported workflow format %q", format)
	}
	return &f, nil
}

// Workflow builds a workflow through AddAgent and AddDependency, so every
// agent and dependency rule is checked. Cycles are only found when the
// workflow is scheduled.
func (f *File) Workflow() (*engine.Workflow, error) {
	wf := engine.NewWorkflow(f.Name, f.GlobalTask)
	for _, agent := range f.Agents {
		if err := wf.AddAgent(agent); err != nil {
			return nil, errors.WithMessagef(err, "workflow %s", f.Name)
		}
	}
	for _, dep := range f.Dependencies {
		if err := wf.AddDependency(dep.Source, dep.Target); err != nil {
			return nil, errors.WithMessagef(err, "workflow %s", f.Name)
		}
	}
	return wf, nil
}
