package ingest

import (
	"strings"

	"github.com/timmy/prodimport/internal/config"
)

// ProductRecord is the canonical product produced from one source row.
// SKU is lower-cased here and upper-cased by the catalog on write.
type ProductRecord struct {
	Line        int
	SKU         string
	Name        string
	Description string
	IsActive    bool
}

// FieldRule resolves one canonical field: by header alias in priority order,
// then by column position when the row could not otherwise be mapped.
// A negative Position disables the positional fallback.
type FieldRule struct {
	Field    string
	Aliases  []string
	Position int
}

// Mapper turns raw records into ProductRecords.
type Mapper struct {
	sku         FieldRule
	name        FieldRule
	description FieldRule
}

// DefaultMappingConfig holds the built-in aliases and positions.
func DefaultMappingConfig() config.MappingConfig {
	return config.MappingConfig{
		SKUAliases:          []string{"uniq_id", "sku", "product_sku", "product-id", "product_id", "id", "item_sku", "pid"},
		NameAliases:         []string{"product_name", "name", "title", "product-title", "item_name"},
		DescriptionAliases:  []string{"description", "desc", "product_description", "item_description"},
		SKUPosition:         0,
		NamePosition:        3,
		DescriptionPosition: 10,
	}
}

// NewMapper builds a Mapper from configured aliases and positions.
func NewMapper(cfg config.MappingConfig) *Mapper {
	return &Mapper{
		sku:         FieldRule{Field: "sku", Aliases: normalizeAll(cfg.SKUAliases), Position: cfg.SKUPosition},
		name:        FieldRule{Field: "name", Aliases: normalizeAll(cfg.NameAliases), Position: cfg.NamePosition},
		description: FieldRule{Field: "description", Aliases: normalizeAll(cfg.DescriptionAliases), Position: cfg.DescriptionPosition},
	}
}

// Map extracts (sku, name, description) from rec. Rows lacking a SKU or a
// name yield a *RowInvalidError; Map never fails otherwise.
func (m *Mapper) Map(rec Record) (ProductRecord, error) {
	columns := make(map[string]int, len(rec.Header))
	for i, h := range rec.Header {
		key := normalizeHeader(h)
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}

	sku := m.sku.byAlias(columns, rec.Values)
	name := m.name.byAlias(columns, rec.Values)
	description := m.description.byAlias(columns, rec.Values)

	if sku == "" || name == "" {
		if sku == "" {
			sku = m.sku.byPosition(rec.Values)
		}
		if name == "" {
			name = m.name.byPosition(rec.Values)
		}
		if description == "" {
			description = m.description.byPosition(rec.Values)
		}
	}

	switch {
	case sku == "" && name == "":
		return ProductRecord{}, &RowInvalidError{Line: rec.Line, Reason: "missing sku and name"}
	case sku == "":
		return ProductRecord{}, &RowInvalidError{Line: rec.Line, Reason: "missing sku"}
	case name == "":
		return ProductRecord{}, &RowInvalidError{Line: rec.Line, Reason: "missing name"}
	}

	return ProductRecord{
		Line:        rec.Line,
		SKU:         strings.ToLower(sku),
		Name:        name,
		Description: description,
		IsActive:    true,
	}, nil
}

func (r FieldRule) byAlias(columns map[string]int, values []string) string {
	for _, alias := range r.Aliases {
		idx, ok := columns[alias]
		if !ok || idx >= len(values) {
			continue
		}
		if v := strings.TrimSpace(values[idx]); v != "" {
			return v
		}
	}
	return ""
}

func (r FieldRule) byPosition(values []string) string {
	if r.Position < 0 || r.Position >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[r.Position])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func normalizeAll(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = normalizeHeader(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
