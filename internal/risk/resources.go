package risk

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resources localizes a Classifier for a deployment region.
//
//	hotlines:
//	  - name: Lifeline
//	    number: 13 11 14
//	    description: 24/7 crisis support
//	keywords:
//	  - "can't go on"
type Resources struct {
	Hotlines []Hotline `yaml:"hotlines"`
	Keywords []string  `yaml:"keywords"`
}

// ParseResources decodes and checks a YAML resource document.
func ParseResources(data []byte) (Resources, error) {
	var res Resources
	if err := yaml.Unmarshal(data, &res); err != nil {
		return Resources{}, fmt.Errorf("ParseResources: %w", err)
	}
	for i, h := range res.Hotlines {
		if h.Name == "" || h.Number == "" {
			return Resources{}, fmt.Errorf("ParseResources: hotline %d: %w", i, errIncompleteHotline)
		}
	}
	return res, nil
}

var errIncompleteHotline = errors.New("name and number are required")

// LoadResources reads a YAML resource file from path.
func LoadResources(path string) (Resources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resources{}, fmt.Errorf("LoadResources: %w", err)
	}
	return ParseResources(data)
}
