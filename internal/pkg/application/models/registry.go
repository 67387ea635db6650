package models

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"
	"text/template"

	"github.com/diwise/graph-gateway/internal/pkg/application/annotations"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"golang.org/x/sync/singleflight"
	yaml "gopkg.in/yaml.v2"
)

//go:embed definitions/*.yaml
var embeddedDefinitions embed.FS

const fallbackDefinition string = "_default.yaml"

// Registry loads model definitions on first use and serves the same
// immutable instance for the lifetime of the process. Concurrent loads of
// the same type collapse into a single read.
type Registry struct {
	defs   fs.FS
	parser *annotations.Parser

	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]*ObjectModel
}

// NewRegistry creates a registry reading definitions from defs, or from the
// embedded defaults when defs is nil.
func NewRegistry(defs fs.FS, parser *annotations.Parser) *Registry {
	if defs == nil {
		sub, err := fs.Sub(embeddedDefinitions, "definitions")
		if err != nil {
			panic(err)
		}
		defs = sub
	}

	if parser == nil {
		parser = annotations.NewParser()
	}

	return &Registry{
		defs:   defs,
		parser: parser,
		models: map[string]*ObjectModel{},
	}
}

// Parser exposes the annotation parser the registry loads definitions with.
func (r *Registry) Parser() *annotations.Parser {
	return r.parser
}

// Model returns the object model for a type, loading and caching it on
// first use.
func (r *Registry) Model(ctx context.Context, objectType string) (*ObjectModel, error) {
	r.mu.RLock()
	model, ok := r.models[objectType]
	r.mu.RUnlock()

	if ok {
		return model, nil
	}

	loaded, err, _ := r.group.Do(objectType, func() (any, error) {
		model, err := r.loadModel(objectType)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.models[objectType] = model
		r.mu.Unlock()

		return model, nil
	})
	if err != nil {
		return nil, err
	}

	return loaded.(*ObjectModel), nil
}

// Permissions returns the permission view of a type. It derives from the
// same definition as the object model, so the two always exist as a pair.
func (r *Registry) Permissions(ctx context.Context, objectType string) (*PermissionsModel, error) {
	model, err := r.Model(ctx, objectType)
	if err != nil {
		return nil, err
	}

	pm := &PermissionsModel{
		objectType: model.objectType,
		order:      model.PropertyNames(),
		byProperty: map[string]*annotations.Permissions{},
	}

	for _, p := range model.properties {
		pm.byProperty[p.Name] = p.Permissions
	}

	return pm, nil
}

type definitionFile struct {
	Type        string               `yaml:"type"`
	Annotations map[string]any       `yaml:"annotations"`
	Properties  []propertyDefinition `yaml:"properties"`
}

type propertyDefinition struct {
	Name        string         `yaml:"name"`
	Annotations map[string]any `yaml:"annotations"`
}

func (r *Registry) loadModel(objectType string) (*ObjectModel, error) {
	data, err := r.readDefinition(objectType)
	if err != nil {
		return nil, ngerrors.NewNoObjectDataError(
			fmt.Sprintf("no model definition for type %s: %s", objectType, err.Error()),
		)
	}

	def := definitionFile{}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, ngerrors.NewNoObjectDataError(
			fmt.Sprintf("malformed model definition for type %s: %s", objectType, err.Error()),
		)
	}

	if def.Type != objectType {
		return nil, ngerrors.NewNoObjectDataError(
			fmt.Sprintf("model definition declares type %s, expected %s", def.Type, objectType),
		)
	}

	model, err := r.buildModel(def)
	if err != nil {
		return nil, ngerrors.NewNoObjectDataError(
			fmt.Sprintf("invalid model definition for type %s: %s", objectType, err.Error()),
		)
	}

	return model, nil
}

func (r *Registry) readDefinition(objectType string) ([]byte, error) {
	data, err := fs.ReadFile(r.defs, objectType+".yaml")
	if err == nil {
		return data, nil
	}

	tmplData, err := fs.ReadFile(r.defs, fallbackDefinition)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(fallbackDefinition).Parse(string(tmplData))
	if err != nil {
		return nil, err
	}

	rendered := &bytes.Buffer{}
	err = tmpl.Execute(rendered, struct{ Type string }{Type: objectType})
	if err != nil {
		return nil, err
	}

	return rendered.Bytes(), nil
}

func (r *Registry) buildModel(def definitionFile) (*ObjectModel, error) {
	model := &ObjectModel{
		objectType:  def.Type,
		settings:    map[string]any{},
		authorizers: map[string][]string{},
		index:       map[string]int{},
	}

	meta := annotations.Meta{Type: def.Type}

	for name, raw := range def.Annotations {
		parsed, err := r.parser.ParseAll(name, raw, meta)
		if err != nil {
			return nil, err
		}

		for _, a := range parsed {
			switch v := a.(type) {
			case *annotations.Version:
				model.version = *v
			case *annotations.Maintenance:
				model.maintenance = v
			case *annotations.Setting:
				model.settings[v.Key] = v.Value
			case *annotations.Authorizer:
				for method, rules := range v.Rules {
					model.authorizers[method] = append(model.authorizers[method], rules...)
				}
			}
		}
	}

	for _, propDef := range def.Properties {
		if propDef.Name == "" {
			return nil, fmt.Errorf("property without a name")
		}
		if _, exists := model.index[propDef.Name]; exists {
			return nil, fmt.Errorf("property %s declared twice", propDef.Name)
		}

		property, err := r.buildProperty(def.Type, propDef)
		if err != nil {
			return nil, err
		}

		model.index[propDef.Name] = len(model.properties)
		model.properties = append(model.properties, property)
	}

	return model, nil
}

func (r *Registry) buildProperty(objectType string, def propertyDefinition) (PropertyDef, error) {
	property := PropertyDef{Name: def.Name}
	meta := annotations.Meta{Type: objectType, Property: def.Name}

	for name, raw := range def.Annotations {
		parsed, err := r.parser.ParseAll(name, raw, meta)
		if err != nil {
			return PropertyDef{}, err
		}

		for _, a := range parsed {
			switch v := a.(type) {
			case *annotations.PropertyType:
				property.Type = v
			case *annotations.Default:
				property.Default = v
			case *annotations.Connection:
				property.Connection = v
			case *annotations.Permissions:
				property.Permissions = v
			case *annotations.Processors:
				if a.Name() == annotations.AnnotationPreprocessor {
					property.Pre = mergeProcessors(property.Pre, v)
				} else {
					property.Post = mergeProcessors(property.Post, v)
				}
			}
		}
	}

	return property, nil
}

func mergeProcessors(existing, incoming *annotations.Processors) *annotations.Processors {
	if existing == nil {
		return incoming
	}

	for method, names := range incoming.Processors {
		existing.Processors[method] = append(existing.Processors[method], names...)
	}

	return existing
}
