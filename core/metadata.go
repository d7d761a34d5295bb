// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Metadata keys with a dedicated field in ChunkMetadata.
const (
	MetaSource   = "source"
	MetaAnswer   = "answer"
	MetaScene    = "scene"
	MetaFileName = "file_name"
	MetaImages   = "images"
	MetaLabel    = "label"
)

// ChunkMetadata is the metadata attached to every chunk. Keys without a
// dedicated field go to Extra.
type ChunkMetadata struct {
	Source   string            `json:"source"`
	Answer   string            `json:"answer"`
	Scene    string            `json:"scene"`
	FileName string            `json:"file_name"`
	Images   []string          `json:"images,omitempty"`
	Label    string            `json:"label"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Lookup returns the string value stored under key.
// Images is a list and is not addressable through Lookup.
func (m ChunkMetadata) Lookup(key string) (string, bool) {
	switch key {
	case MetaSource:
		return m.Source, true
	case MetaAnswer:
		return m.Answer, true
	case MetaScene:
		return m.Scene, true
	case MetaFileName:
		return m.FileName, true
	case MetaLabel:
		return m.Label, true
	case MetaImages:
		return "", false
	}
	v, ok := m.Extra[key]
	return v, ok
}

// Set stores value under key, using Extra for unknown keys.
func (m *ChunkMetadata) Set(key, value string) {
	switch key {
	case MetaSource:
		m.Source = value
	case MetaAnswer:
		m.Answer = value
	case MetaScene:
		m.Scene = value
	case MetaFileName:
		m.FileName = value
	case MetaLabel:
		m.Label = value
	default:
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[key] = value
	}
}

// Clone returns a deep copy.
func (m ChunkMetadata) Clone() ChunkMetadata {
	c := m
	c.Images = slices.Clone(m.Images)
	c.Extra = maps.Clone(m.Extra)
	return c
}

// FilterOp is the comparison applied to one metadata key.
type FilterOp int

const (
	// FilterEquals matches metadata[key] == value.
	FilterEquals FilterOp = iota
	// FilterIn matches metadata[key] IN values.
	FilterIn
)

// FilterCondition is one key predicate of a MetadataFilter.
type FilterCondition struct {
	Key    string
	Op     FilterOp
	Values []string
}

// MetadataFilter is a conjunction of key predicates.
type MetadataFilter struct {
	Conditions []FilterCondition
}

var filterKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ParseMetadataFilter converts a loosely typed filter into a MetadataFilter.
//
// A plain value means equality. A map whose single key is "in" (any case)
// holding a list means membership:
//
//	{"scene": "faq", "label": {"IN": ["a", "b"]}}
func ParseMetadataFilter(raw map[string]any) (*MetadataFilter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filter := &MetadataFilter{}
	for _, key := range keys {
		cond, err := parseCondition(key, raw[key])
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}
	return filter, nil
}

func parseCondition(key string, value any) (FilterCondition, error) {
	if !filterKeyPattern.MatchString(key) {
		return FilterCondition{}, fmt.Errorf("%w: key %q", ErrInvalidFilter, key)
	}
	if key == MetaImages {
		return FilterCondition{}, fmt.Errorf("%w: %q is a list and cannot be filtered", ErrInvalidFilter, key)
	}

	op, ok := value.(map[string]any)
	if !ok {
		s, err := scalarString(value)
		if err != nil {
			return FilterCondition{}, fmt.Errorf("%w: key %q: %w", ErrInvalidFilter, key, err)
		}
		return FilterCondition{Key: key, Op: FilterEquals, Values: []string{s}}, nil
	}

	if len(op) != 1 {
		return FilterCondition{}, fmt.Errorf("%w: key %q: expected a single operator", ErrInvalidFilter, key)
	}
	for name, operand := range op {
		if !strings.EqualFold(name, "in") {
			return FilterCondition{}, fmt.Errorf("%w: key %q: unsupported operator %q", ErrInvalidFilter, key, name)
		}
		values, err := listStrings(operand)
		if err != nil {
			return FilterCondition{}, fmt.Errorf("%w: key %q: %w", ErrInvalidFilter, key, err)
		}
		return FilterCondition{Key: key, Op: FilterIn, Values: values}, nil
	}
	return FilterCondition{}, nil
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

func listStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("membership operand must be a list, got %T", v)
}

// Matches reports whether metadata satisfies every condition.
// A nil filter matches everything.
func (f *MetadataFilter) Matches(m ChunkMetadata) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Conditions {
		v, ok := m.Lookup(cond.Key)
		if !ok {
			return false
		}
		if !slices.Contains(cond.Values, v) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the filter has no conditions.
func (f *MetadataFilter) IsEmpty() bool {
	return f == nil || len(f.Conditions) == 0
}

// IsTypedKey reports whether key maps to a dedicated ChunkMetadata field.
func IsTypedKey(key string) bool {
	switch key {
	case MetaSource, MetaAnswer, MetaScene, MetaFileName, MetaLabel:
		return true
	}
	return false
}
