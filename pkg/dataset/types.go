// Package dataset holds the typed description of a dataset: its features, the relationship
// schema between them and the rows returned by the search index.
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// FeatureType is the declared type of a feature (column).
type FeatureType string

const (
	TypeString   FeatureType = "string"
	TypeInteger  FeatureType = "integer"
	TypeFloat    FeatureType = "float"
	TypeCategory FeatureType = "category"
	TypeList     FeatureType = "list"
)

// Valid reports whether t is one of the known feature types.
func (t FeatureType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeCategory, TypeList:
		return true
	}
	return false
}

// Cardinality of a schema link.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// ParseCardinality accepts the canonical names plus the common spellings
// ("OneToMany", "one-to-many", "1:n").
func ParseCardinality(s string) (Cardinality, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "one_to_one", "onetoone", "1:1":
		return OneToOne, nil
	case "one_to_many", "onetomany", "1:n":
		return OneToMany, nil
	case "many_to_one", "manytoone", "n:1":
		return ManyToOne, nil
	case "many_to_many", "manytomany", "n:n", "n:m":
		return ManyToMany, nil
	}
	return "", apperrors.Configuration("UNKNOWN_CARDINALITY", "unknown schema cardinality %q", s)
}

// SchemaLink is one directed relationship between two features.
type SchemaLink struct {
	Src         string      `json:"src" yaml:"src" msgpack:"src" validate:"required"`
	Dest        string      `json:"dest" yaml:"dest" msgpack:"dest" validate:"required"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality" msgpack:"cardinality" validate:"required"`
}

func (l SchemaLink) String() string {
	return fmt.Sprintf("%s-%s->%s", l.Src, l.Cardinality, l.Dest)
}

// Schema is the set of declared links.
type Schema []SchemaLink

// Validate normalizes every cardinality and fails on the first unknown one.
func (s Schema) Validate() (Schema, error) {
	out := make(Schema, len(s))
	for i, link := range s {
		c, err := ParseCardinality(string(link.Cardinality))
		if err != nil {
			return nil, err
		}
		if link.Src == "" || link.Dest == "" {
			return nil, apperrors.Configuration("INVALID_SCHEMA_LINK", "schema link %d has an empty endpoint", i)
		}
		out[i] = SchemaLink{Src: link.Src, Dest: link.Dest, Cardinality: c}
	}
	return out, nil
}

// Equal compares two schemas as sets of links.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.keys(), other.keys()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s Schema) keys() []string {
	keys := make([]string, len(s))
	for i, l := range s {
		keys[i] = l.String()
	}
	sort.Strings(keys)
	return keys
}

// Features returns every feature named by the schema, in first-seen order.
func (s Schema) Features() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range s {
		for _, f := range []string{l.Src, l.Dest} {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// Row is one result record.
type Row struct {
	ID     string         `json:"id" msgpack:"id"`
	Values map[string]any `json:"values" msgpack:"values"`
}

// Labels returns the string labels a row carries for a feature: one label for scalar
// values, one per element for lists. Missing values yield nil.
func (r Row) Labels(feature string) []string {
	v, ok := r.Values[feature]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if e == nil {
				continue
			}
			out = append(out, formatScalar(e))
		}
		return out
	default:
		return []string{formatScalar(val)}
	}
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Number returns the numeric value of a scalar feature, if it has one.
func (r Row) Number(feature string) (float64, bool) {
	switch val := r.Values[feature].(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// Config is the stored configuration of a dataset.
type Config struct {
	ID                       string                 `json:"id" yaml:"id" validate:"required"`
	Schema                   Schema                 `json:"schema" yaml:"schema" validate:"dive"`
	DimensionTypes           map[string]FeatureType `json:"dimension_types" yaml:"dimension_types" validate:"required,min=1"`
	Anchor                   string                 `json:"anchor" yaml:"anchor" validate:"required"`
	Links                    []string               `json:"links" yaml:"links"`
	DefaultVisibleDimensions []string               `json:"default_visible_dimensions" yaml:"default_visible_dimensions"`
}

// Features returns the configured feature names in sorted order.
func (c *Config) Features() []string {
	out := make([]string, 0, len(c.DimensionTypes))
	for f := range c.DimensionTypes {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Check verifies the cross-field invariants the struct tags cannot express.
func (c *Config) Check() error {
	schema, err := c.Schema.Validate()
	if err != nil {
		return err
	}
	c.Schema = schema
	for f, t := range c.DimensionTypes {
		if !t.Valid() {
			return apperrors.Configuration("UNKNOWN_FEATURE_TYPE", "feature %s has unknown type %q", f, t)
		}
	}
	if _, ok := c.DimensionTypes[c.Anchor]; !ok {
		return apperrors.Configuration("UNKNOWN_ANCHOR", "anchor %s is not a declared dimension", c.Anchor)
	}
	for _, l := range c.Links {
		if _, ok := c.DimensionTypes[l]; !ok {
			return apperrors.Configuration("UNKNOWN_LINK", "link %s is not a declared dimension", l)
		}
	}
	return nil
}
