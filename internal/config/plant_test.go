package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPlant_Defaults(t *testing.T) {
	plant, err := LoadPlant("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if plant.AdminRole != "Администратор" || plant.TopNReasons != 3 {
		t.Fatalf("unexpected defaults %+v", plant)
	}
	lines, ok := plant.Registry.SiteLines("omet")
	if !ok || len(lines) != 6 || lines[5].Name != "СДФ" {
		t.Fatalf("unexpected omet lines %+v", lines)
	}
}

func TestLoadPlant_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.yaml")
	content := `
sites:
  - key: b
    name: Второй
  - key: a
    name: Первый
lines:
  a:
    - key: l2
      name: Линия-2
    - key: l1
      name: Линия-1
top_n_reasons: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	plant, err := LoadPlant(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(plant.Registry.Sites) != 2 || plant.Registry.Sites[0].Name != "Второй" {
		t.Fatalf("expected declared site order, got %+v", plant.Registry.Sites)
	}
	lines, _ := plant.Registry.SiteLines("a")
	if len(lines) != 2 || lines[0].Key != "l2" {
		t.Fatalf("expected declared line order, got %+v", lines)
	}
	if _, ok := plant.Registry.SiteLines("b"); ok {
		t.Fatalf("site b should have no lines entry")
	}
	if plant.TopNReasons != 5 || plant.AdminRole != "Администратор" {
		t.Fatalf("unexpected merge %+v", plant)
	}
	if len(plant.Registry.Reasons) == 0 {
		t.Fatalf("expected default reasons to be kept")
	}
}

func TestLoadPlant_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.yaml")
	if err := os.WriteFile(path, []byte("top_n_reasons: -1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPlant(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
