// Package config implements the persistent configuration collaborator
// described alongside the magicring core: a JSON sidecar file that
// records the parameters a ring was created with, so a second process
// can discover how to open it. The core package neither reads nor
// writes this file; nothing in magicring imports this package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk shape of a ring's configuration file.
type Config struct {
	ProjectName    string `json:"project_name"`
	Name           string `json:"name"`
	ShmPath        string `json:"shm_path"`
	NumConnections int    `json:"num_connections"`
	LibraryVersion string `json:"library_version"`
	ShmSize        uint64 `json:"shm_size"`
	ElementSize    uint64 `json:"element_size"`
	ElementType    string `json:"element_type"`
}

// Path returns the location Load/Save use for a given project and ring
// name: "<local-config-dir>/<project_name>/<name>_config.json".
func Path(projectName, name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(dir, projectName, name+"_config.json"), nil
}

// Load reads and parses the configuration file for name under
// projectName.
func Load(projectName, name string) (*Config, error) {
	p, err := Path(projectName, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", p, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", p, err)
	}
	return &c, nil
}

// Save writes c to its configuration file, creating the project
// directory if necessary.
func Save(c *Config) error {
	p, err := Path(c.ProjectName, c.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", filepath.Dir(p), err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", p, err)
	}
	return nil
}
