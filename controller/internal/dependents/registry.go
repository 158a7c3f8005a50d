package dependents

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dependent is one service whose /config route the controller drives.
type Dependent struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Path defaults to /config.
	Path string `yaml:"path,omitempty"`
}

func (d Dependent) ConfigURL() string {
	p := d.Path
	if p == "" {
		p = "/config"
	}
	return strings.TrimSuffix(d.URL, "/") + "/" + strings.TrimPrefix(p, "/")
}

// Registry is the ordered set of dependents plus the one whose version classifies the episode.
type Registry struct {
	deps       []Dependent
	designated string
}

func NewRegistry(deps []Dependent, designated string) (*Registry, error) {
	if len(deps) == 0 {
		return nil, fmt.Errorf("at least one dependent required")
	}
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if d.Name == "" || d.URL == "" {
			return nil, fmt.Errorf("dependent needs a name and url: %+v", d)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate dependent %q", d.Name)
		}
		seen[d.Name] = true
	}
	if !seen[designated] {
		return nil, fmt.Errorf("designated dependent %q is not registered", designated)
	}
	return &Registry{deps: append([]Dependent(nil), deps...), designated: designated}, nil
}

func (r *Registry) Dependents() []Dependent {
	return append([]Dependent(nil), r.deps...)
}

func (r *Registry) Designated() string {
	return r.designated
}

type registryFile struct {
	Designated string      `yaml:"designated"`
	Dependents []Dependent `yaml:"dependents"`
}

// LoadFile reads a registry from YAML:
//
//	designated: ReviewsProducer
//	dependents:
//	  - name: ReviewsProducer
//	    url: http://reviewsproducer:8080
//	  - name: ReviewsConsumer
//	    url: http://reviewsconsumer:8080
//
// fallbackDesignated applies when the file names none.
func LoadFile(path, fallbackDesignated string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dependents file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse dependents file: %w", err)
	}
	designated := f.Designated
	if designated == "" {
		designated = fallbackDesignated
	}
	return NewRegistry(f.Dependents, designated)
}
