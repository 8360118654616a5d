package model

// FieldKind selects the normalizer applied to a field before comparison.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindPhone    FieldKind = "phone"
	KindDate     FieldKind = "date"
	KindSSN      FieldKind = "ssn"
	KindCurrency FieldKind = "currency"
	KindAddress  FieldKind = "address"
)

// FieldMapping maps a document-extracted field onto its loan-system field.
// Aliases list alternate loan-system field ids whose value is also an
// acceptable match (e.g. borrower alias names).
type FieldMapping struct {
	ID             string         `json:"id" yaml:"id"`
	DisplayName    string         `json:"display_name" yaml:"display_name"`
	Section        string         `json:"section" yaml:"section"`
	Kind           FieldKind      `json:"kind" yaml:"kind"`
	Aliases        []string       `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Required       bool           `json:"required,omitempty" yaml:"required,omitempty"`
	ToleranceClass ToleranceClass `json:"tolerance_class,omitempty" yaml:"tolerance_class,omitempty"`
}

// MappingRegistry is an indexed, order-preserving collection of field
// mappings. Loaded once per run and never mutated afterwards.
type MappingRegistry struct {
	Mappings []FieldMapping
	byID     map[string]*FieldMapping
	byAlias  map[string]*FieldMapping
}

// NewMappingRegistry creates a MappingRegistry with indexed lookups.
// Mappings with an empty Kind default to KindText.
func NewMappingRegistry(mappings []FieldMapping) *MappingRegistry {
	r := &MappingRegistry{
		Mappings: mappings,
		byID:     make(map[string]*FieldMapping, len(mappings)),
		byAlias:  make(map[string]*FieldMapping),
	}
	for i := range r.Mappings {
		m := &r.Mappings[i]
		if m.Kind == "" {
			m.Kind = KindText
		}
		r.byID[m.ID] = m
		for _, alias := range m.Aliases {
			r.byAlias[alias] = m
		}
	}
	return r
}

// ByID returns the mapping for the given field id, or nil if not found.
func (r *MappingRegistry) ByID(id string) *FieldMapping {
	return r.byID[id]
}

// ByAlias returns the mapping that lists the given loan-system field id
// as an alias, or nil if none does.
func (r *MappingRegistry) ByAlias(id string) *FieldMapping {
	return r.byAlias[id]
}

// CandidateIDs returns the system field ids this mapping may match
// against: the primary id first, then aliases in declaration order.
func (m *FieldMapping) CandidateIDs() []string {
	ids := make([]string, 0, 1+len(m.Aliases))
	ids = append(ids, m.ID)
	return append(ids, m.Aliases...)
}

// SystemFieldIDs returns every loan-system field id the registry reads:
// each mapping's primary id followed by its aliases, in declaration order.
func (r *MappingRegistry) SystemFieldIDs() []string {
	ids := make([]string, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		ids = append(ids, m.ID)
		ids = append(ids, m.Aliases...)
	}
	return ids
}

// Required returns all required mappings in declaration order.
func (r *MappingRegistry) Required() []*FieldMapping {
	var req []*FieldMapping
	for i := range r.Mappings {
		if r.Mappings[i].Required {
			req = append(req, &r.Mappings[i])
		}
	}
	return req
}
