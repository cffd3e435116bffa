package tools

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `
- id: clustering
  name: Clustering
  description: Unsupervised clustering of objects
  template: clustering.html
  icon: scatter
- id: classification
  name: Classification
  template: classification.html
  default_window_width: 800
  default_window_height: 600
`

func TestParseManifest(t *testing.T) {
	c, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}

	list := c.Tools()
	if list[0].ID != "clustering" || list[1].ID != "classification" {
		t.Errorf("manifest order not preserved: %+v", list)
	}

	tool, ok := c.Get("classification")
	if !ok {
		t.Fatal("classification not found")
	}
	if tool.TemplateRef != "classification.html" {
		t.Errorf("template = %q", tool.TemplateRef)
	}
	if tool.DefaultWindowWidth != 800 || tool.DefaultWindowHeight != 600 {
		t.Errorf("window size = %dx%d", tool.DefaultWindowWidth, tool.DefaultWindowHeight)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "- name: x\n  template: x.html\n"},
		{"missing template", "- id: x\n  name: x\n"},
		{"duplicate id", "- id: x\n  template: a.html\n- id: x\n  template: b.html\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tc.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestParseManifestEmpty(t *testing.T) {
	c, err := ParseManifest(nil)
	if err != nil {
		t.Fatalf("ParseManifest(nil): %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}
