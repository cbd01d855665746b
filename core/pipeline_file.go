package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// pipelineFile is the on-disk layout of PIPELINE_FILE:
//
//	stages:
//	  - name: raw
//	    capacity: 10000
//	  - name: scaled
//	    capacity: 4096
//	    transform: scale
//	    factor: 0.001
type pipelineFile struct {
	Stages []StageConfig `yaml:"stages"`
}

// LoadPipelineFile reads the stage list from a YAML file. Stages without a
// name are numbered, and a missing transform means identity.
func LoadPipelineFile(path string) ([]StageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrPipelineFile(path, err)
	}
	return ParsePipeline(path, data)
}

// ParsePipeline decodes a pipeline document; path is only used in errors.
func ParsePipeline(path string, data []byte) ([]StageConfig, error) {
	var pf pipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, ErrPipelineFile(path, err)
	}
	if len(pf.Stages) == 0 {
		return nil, ErrPipelineFile(path, fmt.Errorf("no stages defined"))
	}

	seen := make(map[string]bool, len(pf.Stages))
	for i := range pf.Stages {
		s := &pf.Stages[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("stage-%d", i+1)
		}
		if seen[s.Name] {
			return nil, ErrPipelineFile(path, fmt.Errorf("duplicate stage name %q", s.Name))
		}
		seen[s.Name] = true
		if s.Transform == "" {
			s.Transform = "identity"
		}
	}
	return pf.Stages, nil
}
