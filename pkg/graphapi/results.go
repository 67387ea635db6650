// Package graphapi defines the result shapes that graph operations may
// produce and the rules for which shapes are acceptable for which method.
package graphapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
)

type Shape string

const (
	ShapeDataSet    Shape = "dataset"
	ShapeObject     Shape = "object"
	ShapeOperation  Shape = "operation"
	ShapeIncomplete Shape = "incomplete"
	ShapeBoolean    Shape = "boolean"
)

// shapeOrder fixes the candidate shapes per method. Order matters since the
// first shape that accepts the operation result wins.
var shapeOrder = map[string][]Shape{
	http.MethodGet:    {ShapeDataSet, ShapeObject, ShapeOperation},
	http.MethodPost:   {ShapeObject, ShapeIncomplete, ShapeOperation},
	http.MethodPut:    {ShapeObject, ShapeIncomplete, ShapeOperation},
	http.MethodDelete: {ShapeBoolean, ShapeOperation},
}

// ShapesForMethod returns the candidate shapes for a method in validation
// order. Unknown methods have no candidates.
func ShapesForMethod(method string) []Shape {
	candidates, ok := shapeOrder[method]
	if !ok {
		return nil
	}

	result := make([]Shape, len(candidates))
	copy(result, candidates)
	return result
}

// Response is a shaped operation result ready for output rendering.
type Response interface {
	Shape() Shape
}

// DataSet holds an ordered collection of objects together with the total
// count of the underlying collection, which may exceed len(Items) when
// pagination applies.
type DataSet struct {
	Items  []map[string]any `json:"items"`
	Total  int64            `json:"totalCount"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

func NewDataSet(items []map[string]any, total int64) *DataSet {
	if items == nil {
		items = []map[string]any{}
	}
	return &DataSet{Items: items, Total: total}
}

func (d *DataSet) Shape() Shape { return ShapeDataSet }

// Object holds the properties of a single graph object. It serializes to the
// bare property map.
type Object struct {
	Properties map[string]any
}

func NewObject(properties map[string]any) *Object {
	return &Object{Properties: properties}
}

func (o *Object) Shape() Shape { return ShapeObject }

func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Properties)
}

func (o *Object) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &o.Properties)
}

// Property returns a named property value, or nil if absent.
func (o *Object) Property(name string) any {
	if o.Properties == nil {
		return nil
	}
	return o.Properties[name]
}

// Operation describes the outcome of an operation that has no natural object
// representation, such as purging caches.
type Operation struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func NewOperation(success bool, message string) *Operation {
	return &Operation{Success: success, Message: message}
}

func (op *Operation) Shape() Shape { return ShapeOperation }

// Incomplete is the result of a write that was only partially applied.
// Properties holds the applied state and Missing names the parts that were
// not.
type Incomplete struct {
	Properties map[string]any `json:"properties"`
	Missing    []string       `json:"missing"`
}

func NewIncomplete(properties map[string]any, missing []string) *Incomplete {
	return &Incomplete{Properties: properties, Missing: missing}
}

func (i *Incomplete) Shape() Shape { return ShapeIncomplete }

// IsMultiStatus reports whether the result should be delivered as a multi
// status response rather than a plain success.
func (i *Incomplete) IsMultiStatus() bool {
	return len(i.Missing) > 0
}

// BooleanResult serializes to a bare json boolean.
type BooleanResult bool

func (b BooleanResult) Shape() Shape { return ShapeBoolean }

// BuildResponse validates raw operation output against the candidate shapes
// for the method and returns the first shape that accepts it. Output that no
// candidate accepts fails with a response shape error.
func BuildResponse(method string, data any) (Response, error) {
	for _, shape := range ShapesForMethod(method) {
		if response, ok := coerce(shape, data); ok {
			return response, nil
		}
	}

	return nil, ngerrors.NewResponseShapeError(
		fmt.Sprintf("no shape for method %s accepts operation output of type %T", method, data),
	)
}

func coerce(shape Shape, data any) (Response, bool) {
	switch shape {
	case ShapeDataSet:
		switch v := data.(type) {
		case *DataSet:
			return v, v != nil
		case []map[string]any:
			return NewDataSet(v, int64(len(v))), true
		}
	case ShapeObject:
		switch v := data.(type) {
		case *Object:
			return v, v != nil
		case map[string]any:
			return NewObject(v), v != nil
		}
	case ShapeOperation:
		switch v := data.(type) {
		case *Operation:
			return v, v != nil
		case Operation:
			return &v, true
		}
	case ShapeIncomplete:
		if v, ok := data.(*Incomplete); ok {
			return v, v != nil
		}
	case ShapeBoolean:
		switch v := data.(type) {
		case bool:
			return BooleanResult(v), true
		case BooleanResult:
			return v, true
		}
	}

	return nil, false
}
