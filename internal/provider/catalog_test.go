package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "institutions.toml")
	data := `
[[institution]]
id = "ins_1"
name = "First Platypus Bank"
url = "https://firstplatypus.example"

[[institution]]
id = "ins_2"
name = "Tartan Credit Union"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if catalog.Len() != 2 {
		t.Errorf("Len = %d, want 2", catalog.Len())
	}

	inst, ok := catalog.Lookup("ins_1")
	if !ok {
		t.Fatal("Lookup(ins_1) missed")
	}
	if inst.Name != "First Platypus Bank" || inst.URL != "https://firstplatypus.example" {
		t.Errorf("institution = %+v", inst)
	}

	if _, ok := catalog.Lookup("ins_99"); ok {
		t.Error("Lookup(ins_99) hit, want miss")
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file: want error, got nil")
	}

	badPath := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(badPath, []byte("[[institution]]\nname = \"No ID\"\n"), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalog(badPath); err == nil {
		t.Error("entry without id: want error, got nil")
	}
}
