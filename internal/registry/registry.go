// Package registry loads the field-mapping and tolerance tables that
// drive a reconciliation run. Both are YAML files deployed alongside
// the binary so ops can add fields without a release.
package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meridian-lending/recon-cli/internal/model"
)

type mappingsFile struct {
	Fields []model.FieldMapping `yaml:"fields"`
}

type toleranceFile struct {
	Sections map[string]model.ToleranceClass `yaml:"sections"`
}

// LoadMappings reads and validates the field-mapping table.
func LoadMappings(path string) (*model.MappingRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read mappings %s", path)
	}
	var f mappingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse mappings %s", path)
	}
	if len(f.Fields) == 0 {
		return nil, eris.Errorf("registry: no field mappings in %s", path)
	}

	seen := make(map[string]string, len(f.Fields))
	for _, m := range f.Fields {
		if m.ID == "" {
			return nil, eris.Errorf("registry: mapping %q has no id", m.DisplayName)
		}
		if prev, dup := seen[m.ID]; dup {
			return nil, eris.Errorf("registry: duplicate field id %s (%q, %q)", m.ID, prev, m.DisplayName)
		}
		seen[m.ID] = m.DisplayName
		if !validKind(m.Kind) {
			return nil, eris.Errorf("registry: field %s has unknown kind %q", m.ID, m.Kind)
		}
	}
	for _, m := range f.Fields {
		for _, alias := range m.Aliases {
			if owner, clash := seen[alias]; clash {
				return nil, eris.Errorf("registry: alias %s of field %s is already field %q", alias, m.ID, owner)
			}
		}
	}

	zap.L().Info("registry: loaded field mappings",
		zap.String("path", path),
		zap.Int("fields", len(f.Fields)))
	return model.NewMappingRegistry(f.Fields), nil
}

// LoadToleranceTable reads the section-to-class overrides. A missing
// file is fine; the engine's built-in table applies.
func LoadToleranceTable(path string) (map[string]model.ToleranceClass, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "registry: read tolerance table %s", path)
	}
	var f toleranceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse tolerance table %s", path)
	}
	for section, class := range f.Sections {
		switch class {
		case model.ToleranceZero, model.ToleranceAggregate10, model.ToleranceNone:
		default:
			return nil, eris.Errorf("registry: section %s has unknown tolerance class %q", section, class)
		}
	}
	return f.Sections, nil
}

func validKind(k model.FieldKind) bool {
	switch k {
	case "", model.KindText, model.KindPhone, model.KindDate, model.KindSSN, model.KindCurrency, model.KindAddress:
		return true
	default:
		return false
	}
}
