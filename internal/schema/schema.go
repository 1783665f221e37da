// Package schema holds the ordered feature columns the fitted artifacts were
// trained on and the allow-lists accepted as user input.
package schema

import (
	"fmt"
	"strings"
)

// NumericColumn is a direct numeric input with its accepted range.
type NumericColumn struct {
	Name  string  `yaml:"name" json:"name"`
	Field string  `yaml:"field" json:"field"`
	Label string  `yaml:"label" json:"label"`
	Unit  string  `yaml:"unit" json:"unit"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies in the inclusive range.
func (c NumericColumn) Contains(v float64) bool {
	return v >= c.Min && v <= c.Max
}

// CategoricalField is a one-hot encoded input. Indicator columns are named
// Prefix_Value. Reference is the dropped dummy, encoded as all zeros.
type CategoricalField struct {
	Field     string   `yaml:"field" json:"field"`
	Prefix    string   `yaml:"prefix" json:"prefix"`
	Reference string   `yaml:"reference" json:"reference"`
	Allowed   []string `yaml:"allowed" json:"allowed"`
}

// ColumnFor returns the indicator column name a value would have.
func (f CategoricalField) ColumnFor(value string) string {
	return f.Prefix + "_" + value
}

// Schema is the immutable feature registry. It is safe for concurrent use.
type Schema struct {
	columns     []string
	index       map[string]int
	numeric     []NumericColumn
	categorical []CategoricalField
	allowed     map[string]map[string]struct{}
	indicators  map[string][]int
}

// New builds a schema from an explicit column order. Every numeric column
// must appear in columns, every other column must be an indicator of a
// declared categorical field for an allow-listed value.
func New(columns []string, numeric []NumericColumn, categorical []CategoricalField) (*Schema, error) {
	s := &Schema{
		columns:     append([]string(nil), columns...),
		index:       make(map[string]int, len(columns)),
		numeric:     append([]NumericColumn(nil), numeric...),
		categorical: make([]CategoricalField, 0, len(categorical)),
		allowed:     make(map[string]map[string]struct{}, len(categorical)),
		indicators:  make(map[string][]int, len(categorical)),
	}

	for i, name := range s.columns {
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		s.index[name] = i
	}

	numericCols := make(map[string]struct{}, len(numeric))
	for _, n := range numeric {
		if _, ok := s.index[n.Name]; !ok {
			return nil, fmt.Errorf("numeric column %q missing from column order", n.Name)
		}
		if n.Min > n.Max {
			return nil, fmt.Errorf("numeric column %q: min %g exceeds max %g", n.Name, n.Min, n.Max)
		}
		numericCols[n.Name] = struct{}{}
	}

	prefixes := make(map[string]string, len(categorical))
	for _, c := range categorical {
		if c.Field == "" || c.Prefix == "" {
			return nil, fmt.Errorf("categorical field needs both field and prefix: %+v", c)
		}
		if _, dup := s.allowed[c.Field]; dup {
			return nil, fmt.Errorf("duplicate categorical field %q", c.Field)
		}
		set := make(map[string]struct{}, len(c.Allowed))
		for _, v := range c.Allowed {
			set[v] = struct{}{}
		}
		if c.Reference != "" {
			if _, ok := set[c.Reference]; !ok {
				return nil, fmt.Errorf("%s reference %q is not allow-listed", c.Field, c.Reference)
			}
			if _, ok := s.index[c.ColumnFor(c.Reference)]; ok {
				return nil, fmt.Errorf("%s reference %q must not have a column", c.Field, c.Reference)
			}
		}
		s.allowed[c.Field] = set
		prefixes[c.Prefix+"_"] = c.Field
		c.Allowed = append([]string(nil), c.Allowed...)
		s.categorical = append(s.categorical, c)
	}

	for i, name := range s.columns {
		if _, ok := numericCols[name]; ok {
			continue
		}
		field, value, ok := s.splitIndicator(name, prefixes)
		if !ok {
			return nil, fmt.Errorf("column %q is neither numeric nor a known indicator", name)
		}
		if _, ok := s.allowed[field][value]; !ok {
			return nil, fmt.Errorf("indicator column %q has no allow-listed value", name)
		}
		s.indicators[field] = append(s.indicators[field], i)
	}

	return s, nil
}

func (s *Schema) splitIndicator(name string, prefixes map[string]string) (string, string, bool) {
	// Longest prefix wins so overlapping prefixes resolve deterministically.
	best := ""
	for prefix := range prefixes {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", "", false
	}
	return prefixes[best], strings.TrimPrefix(name, best), true
}

// Columns returns a copy of the ordered column names.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Width is the number of columns.
func (s *Schema) Width() int {
	return len(s.columns)
}

// Index returns the position of a named column.
func (s *Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// Numeric returns the numeric columns in declaration order.
func (s *Schema) Numeric() []NumericColumn {
	return append([]NumericColumn(nil), s.numeric...)
}

// Categorical returns the categorical fields in declaration order.
func (s *Schema) Categorical() []CategoricalField {
	return append([]CategoricalField(nil), s.categorical...)
}

// Field returns the categorical field definition by wire name.
func (s *Schema) Field(field string) (CategoricalField, bool) {
	for _, c := range s.categorical {
		if c.Field == field {
			return c, true
		}
	}
	return CategoricalField{}, false
}

// ColumnName returns the indicator column for (field, value) if and only if
// that column exists in the schema.
func (s *Schema) ColumnName(field, value string) (string, bool) {
	c, ok := s.Field(field)
	if !ok {
		return "", false
	}
	name := c.ColumnFor(value)
	if _, ok := s.index[name]; !ok {
		return "", false
	}
	return name, true
}

// IndicatorIndexes returns the column positions holding indicators for a field.
func (s *Schema) IndicatorIndexes(field string) []int {
	return append([]int(nil), s.indicators[field]...)
}

// IsAllowed reports whether value passes the allow-list for field.
func (s *Schema) IsAllowed(field, value string) bool {
	_, ok := s.allowed[field][value]
	return ok
}

// IsReference reports whether value is the dropped dummy for field.
func (s *Schema) IsReference(field, value string) bool {
	c, ok := s.Field(field)
	return ok && c.Reference != "" && c.Reference == value
}

// Unmapped lists the allow-listed values of field that are neither mapped to
// a column nor the reference.
func (s *Schema) Unmapped(field string) []string {
	c, ok := s.Field(field)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range c.Allowed {
		if v == c.Reference {
			continue
		}
		if _, ok := s.ColumnName(field, v); !ok {
			out = append(out, v)
		}
	}
	return out
}
