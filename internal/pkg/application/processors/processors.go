// Package processors runs the named value processors that object models
// attach to their properties. Pre processing may reject properties outright,
// post processing only ever reshapes values.
package processors

import (
	"context"
	"fmt"
	"strings"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

type Kind int

const (
	// KindTransform processors rewrite values and run in both pre and post
	// processing.
	KindTransform Kind = iota
	// KindFilter processors may remove properties and only run during pre
	// processing.
	KindFilter
)

// Outcome is the result of running one processor against one property.
type Outcome struct {
	Value   any
	Remove  bool
	Message string
}

type Processor interface {
	Name() string
	Kind() Kind
	Process(ctx context.Context, property string, value any) (Outcome, error)
}

// Assignment names the processors to run for one property, in order.
type Assignment struct {
	Property string
	Names    []string
}

// Manager resolves processor names to implementations. The set is fixed at
// construction, with later entries replacing earlier ones of the same name.
type Manager struct {
	registry map[string]Processor
}

func NewManager(extras ...Processor) *Manager {
	m := &Manager{registry: map[string]Processor{}}

	for _, p := range builtins() {
		m.registry[p.Name()] = p
	}

	for _, p := range extras {
		m.registry[p.Name()] = p
	}

	return m
}

func (m *Manager) Get(name string) (Processor, bool) {
	p, ok := m.registry[name]
	return p, ok
}

// ApplyToProperties runs pre processing over a property keyed payload.
// Values are rewritten in place and removals are collected across all
// assignments before being reported as a single failure that names every
// removed property.
func (m *Manager) ApplyToProperties(ctx context.Context, method string, assignments []Assignment, valid types.PropertyList, payload map[string]any) (types.PropertyList, map[string]any, error) {
	removed := []string{}
	messages := []string{}

	for _, assignment := range assignments {
		if !valid.Contains(assignment.Property) {
			continue
		}

		value, present := payload[assignment.Property]
		if !present {
			continue
		}

		for _, name := range assignment.Names {
			processor, ok := m.Get(name)
			if !ok {
				return valid, payload, fmt.Errorf("unknown processor %s assigned to %s", name, assignment.Property)
			}

			outcome, err := processor.Process(ctx, assignment.Property, value)
			if err != nil {
				return valid, payload, fmt.Errorf("processor %s failed on %s: %w", name, assignment.Property, err)
			}

			if outcome.Remove {
				removed = append(removed, assignment.Property)

				message := outcome.Message
				if message == "" {
					message = fmt.Sprintf("%s rejected by %s", assignment.Property, name)
				}
				messages = append(messages, message)

				delete(payload, assignment.Property)
				valid = valid.Remove(assignment.Property)
				break
			}

			value = outcome.Value
			payload[assignment.Property] = value
		}
	}

	if len(removed) > 0 {
		return valid, payload, ngerrors.NewPropertiesRemovedError(strings.Join(messages, "; "), removed...)
	}

	return valid, payload, nil
}

// TransformObject runs post processing over an object. Only transforming
// processors participate and none of them may remove anything.
func (m *Manager) TransformObject(ctx context.Context, method string, assignments []Assignment, valid types.PropertyList, object map[string]any) (map[string]any, error) {
	for _, assignment := range assignments {
		if !valid.Contains(assignment.Property) {
			continue
		}

		value, present := object[assignment.Property]
		if !present {
			continue
		}

		for _, name := range assignment.Names {
			processor, ok := m.Get(name)
			if !ok {
				return object, fmt.Errorf("unknown processor %s assigned to %s", name, assignment.Property)
			}

			if processor.Kind() != KindTransform {
				continue
			}

			outcome, err := processor.Process(ctx, assignment.Property, value)
			if err != nil {
				return object, fmt.Errorf("processor %s failed on %s: %w", name, assignment.Property, err)
			}

			if outcome.Remove {
				return object, fmt.Errorf("processor %s attempted removal of %s outside pre processing", name, assignment.Property)
			}

			value = outcome.Value
			object[assignment.Property] = value
		}
	}

	return object, nil
}
