// Package models loads object model definitions and serves them as immutable
// value objects. A model describes one graph object type, its properties and
// the annotations that drive routing, permissions and processing.
package models

import (
	"github.com/diwise/graph-gateway/internal/pkg/application/annotations"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// PropertyDef is the parsed metadata of a single property.
type PropertyDef struct {
	Name        string
	Type        *annotations.PropertyType
	Default     *annotations.Default
	Connection  *annotations.Connection
	Permissions *annotations.Permissions
	Pre         *annotations.Processors
	Post        *annotations.Processors
}

// PropertyProcessors names the processors registered for one property, in
// declaration order.
type PropertyProcessors struct {
	Property string
	Names    []string
}

// ObjectModel is the immutable model of one object type.
type ObjectModel struct {
	objectType  string
	version     annotations.Version
	maintenance *annotations.Maintenance
	settings    map[string]any
	authorizers map[string][]string
	properties  []PropertyDef
	index       map[string]int
}

func (m *ObjectModel) Type() string {
	return m.objectType
}

func (m *ObjectModel) Version() annotations.Version {
	return m.version
}

// UnderMaintenance reports whether the type is taken out of rotation, and
// with what message.
func (m *ObjectModel) UnderMaintenance() (bool, string) {
	if m.maintenance == nil || !m.maintenance.Enabled {
		return false, ""
	}
	return true, m.maintenance.Message
}

func (m *ObjectModel) Setting(key string) (any, bool) {
	value, ok := m.settings[key]
	return value, ok
}

// AuthorizerRules returns the rule names gating the given method, in
// declaration order. The returned slice is a copy.
func (m *ObjectModel) AuthorizerRules(method string) []string {
	rules := m.authorizers[method]
	if len(rules) == 0 {
		return nil
	}

	result := make([]string, len(rules))
	copy(result, rules)
	return result
}

func (m *ObjectModel) HasProperty(name string) bool {
	_, ok := m.index[name]
	return ok
}

func (m *ObjectModel) Property(name string) (PropertyDef, bool) {
	i, ok := m.index[name]
	if !ok {
		return PropertyDef{}, false
	}
	return m.properties[i], true
}

func (m *ObjectModel) PropertyNames() types.PropertyList {
	names := make(types.PropertyList, 0, len(m.properties))
	for _, p := range m.properties {
		names = append(names, p.Name)
	}
	return names
}

// DefaultProperties lists the properties selected when a request names no
// fields, in declaration order.
func (m *ObjectModel) DefaultProperties() types.PropertyList {
	names := types.PropertyList{}
	for _, p := range m.properties {
		if p.Default != nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// Connection returns the connection annotation of a property, if it is one.
func (m *ObjectModel) Connection(name string) (*annotations.Connection, bool) {
	p, ok := m.Property(name)
	if !ok || p.Connection == nil {
		return nil, false
	}
	return p.Connection, true
}

func (m *ObjectModel) Connections() types.PropertyList {
	names := types.PropertyList{}
	for _, p := range m.properties {
		if p.Connection != nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// Preprocessors collects the preprocessor assignments for a method over all
// properties, in property declaration order.
func (m *ObjectModel) Preprocessors(method string) []PropertyProcessors {
	return m.collectProcessors(method, func(p PropertyDef) *annotations.Processors { return p.Pre })
}

// Postprocessors collects the postprocessor assignments for a method over
// all properties, in property declaration order.
func (m *ObjectModel) Postprocessors(method string) []PropertyProcessors {
	return m.collectProcessors(method, func(p PropertyDef) *annotations.Processors { return p.Post })
}

func (m *ObjectModel) collectProcessors(method string, pick func(PropertyDef) *annotations.Processors) []PropertyProcessors {
	result := []PropertyProcessors{}

	for _, p := range m.properties {
		procs := pick(p)
		if procs == nil {
			continue
		}

		names := procs.Processors[method]
		if len(names) == 0 {
			continue
		}

		result = append(result, PropertyProcessors{Property: p.Name, Names: names})
	}

	return result
}

// PermissionsModel is the permission view of an object model. Every model
// has exactly one, derived from the same definition.
type PermissionsModel struct {
	objectType string
	order      []string
	byProperty map[string]*annotations.Permissions
}

func (pm *PermissionsModel) Type() string {
	return pm.objectType
}

// Allows reports whether the flag grants access to the property for the
// method. Properties without permission metadata are denied for everyone.
func (pm *PermissionsModel) Allows(property, method string, flag types.PermissionFlag) bool {
	permissions, ok := pm.byProperty[property]
	if !ok || permissions == nil {
		return false
	}
	return permissions.Allows(method, flag)
}

// AllowedProperties lists every property the flag may access for the
// method, in declaration order.
func (pm *PermissionsModel) AllowedProperties(method string, flag types.PermissionFlag) types.PropertyList {
	allowed := types.PropertyList{}
	for _, name := range pm.order {
		if pm.Allows(name, method, flag) {
			allowed = append(allowed, name)
		}
	}
	return allowed
}

// Filter intersects the requested properties with those the flag may access,
// preserving the requested order.
func (pm *PermissionsModel) Filter(requested types.PropertyList, method string, flag types.PermissionFlag) types.PropertyList {
	valid := types.PropertyList{}
	for _, name := range requested {
		if pm.Allows(name, method, flag) {
			valid = append(valid, name)
		}
	}
	return valid
}
