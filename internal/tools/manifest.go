// Package tools describes the remote analysis capabilities available to a
// viewer and the HTTP protocol for talking to them.
package tools

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool is an immutable catalog entry describing one remote analysis
// capability. Loaded once at startup from the manifest.
type Tool struct {
	ID                  string `yaml:"id" json:"id"`
	Name                string `yaml:"name" json:"name"`
	Description         string `yaml:"description" json:"description,omitempty"`
	TemplateRef         string `yaml:"template" json:"template"`
	Icon                string `yaml:"icon" json:"icon,omitempty"`
	DefaultWindowWidth  int    `yaml:"default_window_width" json:"default_window_width,omitempty"`
	DefaultWindowHeight int    `yaml:"default_window_height" json:"default_window_height,omitempty"`
}

// Catalog is the set of tools loaded from the manifest, in manifest order.
type Catalog struct {
	tools []Tool
	byID  map[string]Tool
}

// LoadManifest reads the tool manifest. A malformed entry (missing id or
// template) is an error; callers treat it as fatal at startup.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest bytes.
func ParseManifest(data []byte) (*Catalog, error) {
	var entries []Tool
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse tool manifest: %w", err)
	}

	c := &Catalog{byID: make(map[string]Tool, len(entries))}
	for i, t := range entries {
		if t.ID == "" {
			return nil, fmt.Errorf("tool manifest entry %d: missing id", i)
		}
		if t.TemplateRef == "" {
			return nil, fmt.Errorf("tool manifest entry %q: missing template", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("tool manifest entry %q: duplicate id", t.ID)
		}
		c.byID[t.ID] = t
		c.tools = append(c.tools, t)
	}
	return c, nil
}

// Tools returns the catalog entries in manifest order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Get returns the tool with the given id.
func (c *Catalog) Get(id string) (Tool, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.tools)
}
