// Package annotations turns the raw annotation values found in object model
// definitions into typed value objects. Each annotation kind has its own
// parsing strategy, registered once at startup and immutable after that.
package annotations

import (
	"fmt"
	"sort"
	"strings"
)

const (
	AnnotationAuthorizer    string = "authorizer"
	AnnotationConnection    string = "connection"
	AnnotationDefault       string = "default"
	AnnotationMaintenance   string = "maintenance"
	AnnotationPermissions   string = "permissions"
	AnnotationPreprocessor  string = "preprocessor"
	AnnotationPostprocessor string = "postprocessor"
	AnnotationSetting       string = "setting"
	AnnotationType          string = "type"
	AnnotationVersion       string = "version"
)

// Meta tells a strategy where the annotation it is parsing appears.
type Meta struct {
	Type     string
	Property string
}

// Annotation is a parsed annotation value object.
type Annotation interface {
	Name() string
}

type strategy struct {
	byMethod bool
	multiple bool
	parse    func(data any, meta Meta) (Annotation, error)
}

// Parser holds the registered parsing strategies. The strategy set is fixed
// at construction.
type Parser struct {
	strategies map[string]strategy
}

func NewParser() *Parser {
	return &Parser{
		strategies: map[string]strategy{
			AnnotationAuthorizer:    {byMethod: true, parse: parseAuthorizer},
			AnnotationConnection:    {parse: parseConnection},
			AnnotationDefault:       {parse: parseDefault},
			AnnotationMaintenance:   {parse: parseMaintenance},
			AnnotationPermissions:   {byMethod: true, parse: parsePermissions},
			AnnotationPreprocessor:  {byMethod: true, multiple: true, parse: parseProcessors(AnnotationPreprocessor)},
			AnnotationPostprocessor: {byMethod: true, multiple: true, parse: parseProcessors(AnnotationPostprocessor)},
			AnnotationSetting:       {multiple: true, parse: parseSetting},
			AnnotationType:          {parse: parsePropertyType},
			AnnotationVersion:       {parse: parseVersion},
		},
	}
}

// Parse turns raw annotation data into its typed form. Unrecognized names
// parse to nil without error, malformed data for a known name fails.
func (p *Parser) Parse(name string, data any, meta Meta) (Annotation, error) {
	s, ok := p.strategies[name]
	if !ok {
		return nil, nil
	}

	a, err := s.parse(normalize(data), meta)
	if err != nil {
		return nil, fmt.Errorf("annotation %s on %s: %w", name, meta, err)
	}

	return a, nil
}

// ParseAll parses an annotation that may hold multiple values. For kinds
// that allow multiples a list input parses element by element, everything
// else parses as a single value.
func (p *Parser) ParseAll(name string, data any, meta Meta) ([]Annotation, error) {
	if !p.AllowsMultiple(name) {
		a, err := p.Parse(name, data, meta)
		if err != nil || a == nil {
			return nil, err
		}
		return []Annotation{a}, nil
	}

	values, ok := normalize(data).([]any)
	if !ok {
		values = []any{data}
	}

	result := make([]Annotation, 0, len(values))
	for _, v := range values {
		a, err := p.Parse(name, v, meta)
		if err != nil {
			return nil, err
		}
		if a != nil {
			result = append(result, a)
		}
	}

	return result, nil
}

// IsByMethod reports whether the annotation kind is parsed per HTTP method.
func (p *Parser) IsByMethod(name string) bool {
	return p.strategies[name].byMethod
}

// AllowsMultiple reports whether more than one value of the annotation kind
// may appear on the same target.
func (p *Parser) AllowsMultiple(name string) bool {
	return p.strategies[name].multiple
}

func (p *Parser) IsValidAnnotation(name string) bool {
	_, ok := p.strategies[name]
	return ok
}

// ValidAnnotations returns the sorted names of all registered annotation
// kinds. The returned slice is a copy.
func (p *Parser) ValidAnnotations() []string {
	names := make([]string, 0, len(p.strategies))
	for name := range p.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m Meta) String() string {
	if m.Property == "" {
		return m.Type
	}
	return m.Type + "." + m.Property
}

var knownMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {},
}

// byMethodValues splits a method keyed map into uppercase method names and
// their string list values. Scalar values are treated as single element
// lists.
func byMethodValues(data any) (map[string][]string, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a method keyed map, got %T", data)
	}

	result := map[string][]string{}

	for method, raw := range asMap {
		method = strings.ToUpper(method)
		if _, known := knownMethods[method]; !known {
			return nil, fmt.Errorf("unknown method %s", method)
		}

		values, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", method, err)
		}

		result[method] = values
	}

	return result, nil
}

func stringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			values = append(values, s)
		}
		return values, nil
	}

	return nil, fmt.Errorf("expected string or list of strings, got %T", raw)
}

// normalize rewrites the interface keyed maps that yaml unmarshalling
// produces into string keyed maps, recursively.
func normalize(data any) any {
	switch v := data.(type) {
	case map[any]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[fmt.Sprintf("%v", key)] = normalize(value)
		}
		return result
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = normalize(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = normalize(value)
		}
		return result
	}

	return data
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
