package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"calpadsrunner/internal/core/domain"
)

// FileRegistry implements ports.OrgRegistry over a YAML file of units.
type FileRegistry struct {
	units []domain.OrgUnit
}

type registryFile struct {
	Units []domain.OrgUnit `yaml:"units"`
}

// Load reads the registry file at path.
func Load(path string) (*FileRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes registry YAML. Every unit needs a short code, a numeric key
// and a context key; short codes must be unique.
func Parse(data []byte) (*FileRegistry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	seen := make(map[string]bool, len(f.Units))
	for i, u := range f.Units {
		if u.Short == "" || u.NumericKey == "" || u.ContextKey == "" {
			return nil, fmt.Errorf("unit %d: short, lea and context_key are required", i)
		}
		key := strings.ToLower(u.Short)
		if seen[key] {
			return nil, fmt.Errorf("unit %d: duplicate short code %q", i, u.Short)
		}
		seen[key] = true
		if f.Units[i].ID == "" {
			f.Units[i].ID = key
		}
	}
	return &FileRegistry{units: f.Units}, nil
}

// New builds a registry from units already in memory.
func New(units []domain.OrgUnit) *FileRegistry {
	return &FileRegistry{units: append([]domain.OrgUnit(nil), units...)}
}

// Resolve matches codeOrName against short code, numeric key, context key,
// id and display name, in that order, ignoring case.
func (r *FileRegistry) Resolve(codeOrName string) (domain.OrgUnit, error) {
	q := strings.TrimSpace(codeOrName)
	if q == "" {
		return domain.OrgUnit{}, domain.NotFound("org unit (empty identifier)")
	}

	fields := []func(domain.OrgUnit) string{
		func(u domain.OrgUnit) string { return u.Short },
		func(u domain.OrgUnit) string { return u.NumericKey },
		func(u domain.OrgUnit) string { return u.ContextKey },
		func(u domain.OrgUnit) string { return u.ID },
		func(u domain.OrgUnit) string { return u.Name },
	}
	for _, field := range fields {
		for _, u := range r.units {
			if strings.EqualFold(field(u), q) {
				return u, nil
			}
		}
	}
	// Numeric keys are often written without their leading zero.
	for _, u := range r.units {
		if strings.TrimLeft(u.NumericKey, "0") == strings.TrimLeft(q, "0") && strings.TrimLeft(q, "0") != "" {
			return u, nil
		}
	}
	return domain.OrgUnit{}, domain.NotFound(fmt.Sprintf("org unit %q", q))
}

// All returns every unit in file order.
func (r *FileRegistry) All() []domain.OrgUnit {
	return append([]domain.OrgUnit(nil), r.units...)
}
