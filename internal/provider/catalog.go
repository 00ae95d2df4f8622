package provider

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Catalog is a local TOML catalog of known institutions, bundled with the
// app so common institution names resolve without a provider round trip.
//
// File format:
//
//	[[institution]]
//	id = "ins_109508"
//	name = "First Platypus Bank"
//	url = "https://firstplatypus.example"
type Catalog struct {
	byID map[string]Institution
}

// catalogFile is the top-level TOML structure.
type catalogFile struct {
	Institutions []Institution `toml:"institution"`
}

// LoadCatalog reads and parses an institution catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	byID := make(map[string]Institution, len(file.Institutions))
	for _, inst := range file.Institutions {
		if inst.ID == "" {
			return nil, fmt.Errorf("catalog entry missing id (name=%q)", inst.Name)
		}
		byID[inst.ID] = inst
	}

	return &Catalog{byID: byID}, nil
}

// Lookup returns the institution for id, if the catalog knows it.
func (c *Catalog) Lookup(id string) (Institution, bool) {
	inst, ok := c.byID[id]
	return inst, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.byID)
}
