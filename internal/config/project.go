package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Project is the optional per-repository configuration file (crewd.yaml).
// It tells the watcher which directories hold coordinated files and which
// paths to ignore.
type Project struct {
	WatchRoots []string `yaml:"watch_roots"`
	Ignore     []string `yaml:"ignore"`
}

// DefaultProject watches the working directory and skips the usual noise.
func DefaultProject() *Project {
	return &Project{
		WatchRoots: []string{"."},
		Ignore:     []string{".git", ".crewd", "node_modules"},
	}
}

// LoadProject reads the project file at path. A missing file is not an
// error; defaults are returned instead.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProject(), nil
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if len(p.WatchRoots) == 0 {
		p.WatchRoots = []string{"."}
	}
	return &p, nil
}
