package annotations

import (
	"fmt"

	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// Authorizer names the rules that gate an operation per method, evaluated in
// declaration order.
type Authorizer struct {
	Rules map[string][]string
}

func (Authorizer) Name() string { return AnnotationAuthorizer }

func parseAuthorizer(data any, meta Meta) (Annotation, error) {
	rules, err := byMethodValues(data)
	if err != nil {
		return nil, err
	}
	return &Authorizer{Rules: rules}, nil
}

// Connection declares that a property holds references to other objects of
// the target type rather than a scalar value.
type Connection struct {
	Target string
	API    string
}

func (Connection) Name() string { return AnnotationConnection }

func parseConnection(data any, meta Meta) (Annotation, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	target, _ := asMap["target"].(string)
	if target == "" {
		return nil, fmt.Errorf("connection requires a target type")
	}

	api, _ := asMap["api"].(string)

	return &Connection{Target: target, API: api}, nil
}

// Default marks a property as part of the default selection when a request
// names no fields. A value may be supplied for properties absent from source
// data.
type Default struct {
	Value    any
	HasValue bool
}

func (Default) Name() string { return AnnotationDefault }

func parseDefault(data any, meta Meta) (Annotation, error) {
	if data == nil {
		return &Default{}, nil
	}

	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	value, hasValue := asMap["value"]

	return &Default{Value: value, HasValue: hasValue}, nil
}

// Maintenance takes a whole object type out of rotation.
type Maintenance struct {
	Enabled bool
	Message string
}

func (Maintenance) Name() string { return AnnotationMaintenance }

func parseMaintenance(data any, meta Meta) (Annotation, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	enabled, _ := asMap["enabled"].(bool)
	message, _ := asMap["message"].(string)

	return &Maintenance{Enabled: enabled, Message: message}, nil
}

// Permissions lists the permission flags that may see or write a property,
// per method.
type Permissions struct {
	Flags map[string][]types.PermissionFlag
}

func (Permissions) Name() string { return AnnotationPermissions }

// Allows reports whether the given flag grants the property for the method.
// Methods without a declared flag list deny everything.
func (p *Permissions) Allows(method string, flag types.PermissionFlag) bool {
	for _, allowed := range p.Flags[method] {
		if allowed == flag {
			return true
		}
	}
	return false
}

func parsePermissions(data any, meta Meta) (Annotation, error) {
	byMethod, err := byMethodValues(data)
	if err != nil {
		return nil, err
	}

	flags := make(map[string][]types.PermissionFlag, len(byMethod))
	for method, values := range byMethod {
		list := make([]types.PermissionFlag, 0, len(values))
		for _, v := range values {
			list = append(list, types.PermissionFlag(v))
		}
		flags[method] = list
	}

	return &Permissions{Flags: flags}, nil
}

// Processors names the processors to run against a property, per method and
// in declaration order. The same value object backs both the preprocessor
// and the postprocessor annotation.
type Processors struct {
	kind       string
	Processors map[string][]string
}

func (p Processors) Name() string { return p.kind }

func parseProcessors(kind string) func(any, Meta) (Annotation, error) {
	return func(data any, meta Meta) (Annotation, error) {
		byMethod, err := byMethodValues(data)
		if err != nil {
			return nil, err
		}
		return &Processors{kind: kind, Processors: byMethod}, nil
	}
}

// Setting is a free form key value pair scoped to an object type.
type Setting struct {
	Key   string
	Value any
}

func (Setting) Name() string { return AnnotationSetting }

func parseSetting(data any, meta Meta) (Annotation, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	key, _ := asMap["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("setting requires a key")
	}

	return &Setting{Key: key, Value: asMap["value"]}, nil
}

// PropertyType declares the value type of a property.
type PropertyType struct {
	Kind   string
	Format string
}

func (PropertyType) Name() string { return AnnotationType }

func parsePropertyType(data any, meta Meta) (Annotation, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	kind, _ := asMap["name"].(string)
	if kind == "" {
		return nil, fmt.Errorf("type requires a name")
	}

	format, _ := asMap["format"].(string)

	return &PropertyType{Kind: kind, Format: format}, nil
}

// Version bounds the model versions an object type definition applies to.
// A max of zero means unbounded.
type Version struct {
	Min int
	Max int
}

func (Version) Name() string { return AnnotationVersion }

func parseVersion(data any, meta Meta) (Annotation, error) {
	asMap, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a map, got %T", data)
	}

	version := &Version{}

	if raw, found := asMap["min"]; found {
		min, ok := asInt(raw)
		if !ok {
			return nil, fmt.Errorf("min must be an integer")
		}
		version.Min = min
	}

	if raw, found := asMap["max"]; found {
		max, ok := asInt(raw)
		if !ok {
			return nil, fmt.Errorf("max must be an integer")
		}
		version.Max = max
	}

	if version.Max != 0 && version.Max < version.Min {
		return nil, fmt.Errorf("max version precedes min version")
	}

	return version, nil
}
