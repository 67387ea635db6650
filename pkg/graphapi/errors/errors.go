package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrParseFailure = fmt.Errorf("request parse failure")
var ErrNotPermitted = fmt.Errorf("operation not permitted")
var ErrPermissionDenied = fmt.Errorf("permission denied")
var ErrInvalidFields = fmt.Errorf("invalid fields requested")
var ErrPropertiesRemoved = fmt.Errorf("properties removed by processor")
var ErrResponseShape = fmt.Errorf("invalid response shape")
var ErrNoObjectData = fmt.Errorf("no object data")
var ErrNotFound = fmt.Errorf("not found")
var ErrInternal = fmt.Errorf("internal error")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewParseFailureError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrParseFailure,
	}
}

func NewNotPermittedError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNotPermitted,
	}
}

func NewPermissionDeniedError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrPermissionDenied,
	}
}

func NewResponseShapeError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrResponseShape,
	}
}

func NewNoObjectDataError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNoObjectData,
	}
}

func NewNotFoundError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNotFound,
	}
}

// PropertySetError is an error that concerns a specific set of property
// names, such as unknown fields in a request or properties that a processor
// refused to pass through.
type PropertySetError struct {
	msg        string
	target     error
	Properties []string
}

func (e *PropertySetError) Error() string        { return e.msg }
func (e *PropertySetError) Is(target error) bool { return target == e.target }

func NewInvalidFieldsError(msg string, fields ...string) error {
	return &PropertySetError{
		msg:        msg,
		target:     ErrInvalidFields,
		Properties: fields,
	}
}

func NewPropertiesRemovedError(msg string, removed ...string) error {
	return &PropertySetError{
		msg:        msg,
		target:     ErrPropertiesRemoved,
		Properties: removed,
	}
}

// AffectedProperties returns the property names an error concerns, or nil if
// the error carries no such set.
func AffectedProperties(err error) []string {
	var pse *PropertySetError
	if errors.As(err, &pse) {
		return pse.Properties
	}
	return nil
}

func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	err := json.Unmarshal(body, report)
	if err != nil {
		return fmt.Errorf("failed to process problem report from gateway: %s", err.Error())
	}

	if code == http.StatusNotFound || report.Type == errTypePrefix+"NoSuchObject" {
		return NewNotFoundError(report.Detail)
	}

	byType := map[string]func(string) error{
		errTypePrefix + "RequestParseFailure":    NewParseFailureError,
		errTypePrefix + "OperationNotPermitted":  NewNotPermittedError,
		errTypePrefix + "PermissionDenied":       NewPermissionDeniedError,
		errTypePrefix + "InvalidResponseShape":   NewResponseShapeError,
		errTypePrefix + "NoObjectData":           NewNoObjectDataError,
		errTypePrefix + "InvalidFieldsRequested": func(msg string) error { return NewInvalidFieldsError(msg) },
		errTypePrefix + "ProcessorRemovedProperties": func(msg string) error {
			return NewPropertiesRemovedError(msg)
		},
	}

	if create, ok := byType[report.Type]; ok {
		return create(report.Detail)
	}

	return NewInternalError(
		fmt.Sprintf("[code: %d] unknown problem report of type \"%s\" with detail \"%s\" received",
			code, report.Type, report.Detail,
		),
		"traceID",
	)
}
