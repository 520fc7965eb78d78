package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yshorts/shorts-agent/internal/shorts"
)

// momentsFile is the wrapped form, matching the transcribe-and-extract
// response body.
type momentsFile struct {
	BestMoments []shorts.MomentDescriptor `yaml:"bestMoments"`
}

// loadMoments reads a YAML or JSON file holding either a list of moments or
// an object with a bestMoments list.
func loadMoments(path string) ([]shorts.MomentDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read moments: %w", err)
	}
	return parseMoments(data)
}

func parseMoments(data []byte) ([]shorts.MomentDescriptor, error) {
	var list []shorts.MomentDescriptor
	if err := yaml.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return nil, errors.New("moments file is empty")
		}
		return list, nil
	}

	var wrapped momentsFile
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse moments: %w", err)
	}
	if len(wrapped.BestMoments) == 0 {
		return nil, errors.New("moments file has no bestMoments")
	}
	return wrapped.BestMoments, nil
}
