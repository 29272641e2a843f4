package domain

import "sort"

// FieldKind is the value type of a filterable specification field.
type FieldKind string

// Field kinds.
const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
)

// SpecField describes one filterable specification field.
type SpecField struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`
}

// specFieldRegistry lists the filterable fields per component type, keyed by
// category slug. Keys are in slug.Key form.
var specFieldRegistry = map[string][]SpecField{
	"electronics": {
		{Key: "color", Label: "Color", Kind: KindText},
		{Key: "warranty_months", Label: "Warranty (months)", Kind: KindNumber},
	},
	"phones": {
		{Key: "color", Label: "Color", Kind: KindText},
		{Key: "storage_gb", Label: "Storage (GB)", Kind: KindNumber},
		{Key: "ram_gb", Label: "RAM (GB)", Kind: KindNumber},
		{Key: "screen_size", Label: "Screen size", Kind: KindNumber},
		{Key: "dual_sim", Label: "Dual SIM", Kind: KindBool},
	},
	"laptops": {
		{Key: "color", Label: "Color", Kind: KindText},
		{Key: "processor", Label: "Processor", Kind: KindText},
		{Key: "ram_gb", Label: "RAM (GB)", Kind: KindNumber},
		{Key: "storage_gb", Label: "Storage (GB)", Kind: KindNumber},
		{Key: "screen_size", Label: "Screen size", Kind: KindNumber},
	},
	"clothing": {
		{Key: "size", Label: "Size", Kind: KindText},
		{Key: "color", Label: "Color", Kind: KindText},
		{Key: "material", Label: "Material", Kind: KindText},
		{Key: "gender", Label: "Gender", Kind: KindText},
	},
	"shoes": {
		{Key: "shoe_size", Label: "Shoe size", Kind: KindNumber},
		{Key: "color", Label: "Color", Kind: KindText},
		{Key: "material", Label: "Material", Kind: KindText},
		{Key: "waterproof", Label: "Waterproof", Kind: KindBool},
	},
	"home-kitchen": {
		{Key: "material", Label: "Material", Kind: KindText},
		{Key: "capacity_l", Label: "Capacity (L)", Kind: KindNumber},
		{Key: "dishwasher_safe", Label: "Dishwasher safe", Kind: KindBool},
	},
}

var knownSpecKeys = func() map[string]SpecField {
	out := make(map[string]SpecField)
	for _, fields := range specFieldRegistry {
		for _, f := range fields {
			out[f.Key] = f
		}
	}
	return out
}()

// SpecFieldsFor returns the fields registered for a component type, or nil.
func SpecFieldsFor(componentType string) []SpecField {
	fields := specFieldRegistry[componentType]
	if len(fields) == 0 {
		return nil
	}
	out := make([]SpecField, len(fields))
	copy(out, fields)
	return out
}

// LookupSpecField finds a registered field by key across component types.
func LookupSpecField(key string) (SpecField, bool) {
	f, ok := knownSpecKeys[key]
	return f, ok
}

// AllSpecFields returns every registered field once, sorted by key.
func AllSpecFields() []SpecField {
	out := make([]SpecField, 0, len(knownSpecKeys))
	for _, f := range knownSpecKeys {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
