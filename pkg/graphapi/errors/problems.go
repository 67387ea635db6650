package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const errTypePrefix string = "https://diwise.github.io/graph-gateway/errors/"

// ProblemDetails stores details about a certain problem according to RFC7807
// See https://tools.ietf.org/html/rfc7807
type ProblemDetails interface {
	ContentType() string
	Type() string
	Title() string
	Detail() string
	ResponseCode() int
	MarshalJSON() ([]byte, error)
	WriteResponse(w http.ResponseWriter)
}

// ProblemDetailsImpl is an implementation of the ProblemDetails interface
type ProblemDetailsImpl struct {
	typ     string
	title   string
	detail  string
	code    int
	traceID string
}

const (
	// ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"
)

func newProblem(kind, title string, code int, detail, traceID string) ProblemDetailsImpl {
	return ProblemDetailsImpl{
		typ:     errTypePrefix + kind,
		title:   title,
		detail:  detail,
		code:    code,
		traceID: traceID,
	}
}

// RequestParseFailure reports that the entity string or its options could not
// be understood
type RequestParseFailure struct {
	ProblemDetailsImpl
}

func NewRequestParseFailure(detail, traceID string) *RequestParseFailure {
	return &RequestParseFailure{
		ProblemDetailsImpl: newProblem("RequestParseFailure", "Request Parse Failure", http.StatusBadRequest, detail, traceID),
	}
}

// ReportNewRequestParseFailure creates a RequestParseFailure instance and sends it to the supplied http.ResponseWriter
func ReportNewRequestParseFailure(w http.ResponseWriter, detail, traceID string) {
	rpf := NewRequestParseFailure(detail, traceID)
	rpf.WriteResponse(w)
}

// OperationNotPermitted reports that the resolved API does not support the
// requested method
type OperationNotPermitted struct {
	ProblemDetailsImpl
}

func NewOperationNotPermitted(detail, traceID string) *OperationNotPermitted {
	return &OperationNotPermitted{
		ProblemDetailsImpl: newProblem("OperationNotPermitted", "Operation Not Permitted", http.StatusMethodNotAllowed, detail, traceID),
	}
}

// PermissionDenied reports that the viewer holds no permission flag that
// grants access to the requested operation
type PermissionDenied struct {
	ProblemDetailsImpl
}

func NewPermissionDenied(detail, traceID string) *PermissionDenied {
	return &PermissionDenied{
		ProblemDetailsImpl: newProblem("PermissionDenied", "Permission Denied", http.StatusForbidden, detail, traceID),
	}
}

// InvalidFieldsRequested reports that one or more requested fields do not
// exist on the object model
type InvalidFieldsRequested struct {
	ProblemDetailsImpl
}

func NewInvalidFieldsRequested(detail, traceID string) *InvalidFieldsRequested {
	return &InvalidFieldsRequested{
		ProblemDetailsImpl: newProblem("InvalidFieldsRequested", "Invalid Fields Requested", http.StatusBadRequest, detail, traceID),
	}
}

// ProcessorRemovedProperties reports that pre processing refused to pass one
// or more payload properties through to the operation
type ProcessorRemovedProperties struct {
	ProblemDetailsImpl
}

func NewProcessorRemovedProperties(detail, traceID string) *ProcessorRemovedProperties {
	return &ProcessorRemovedProperties{
		ProblemDetailsImpl: newProblem("ProcessorRemovedProperties", "Processor Removed Properties", http.StatusUnprocessableEntity, detail, traceID),
	}
}

// InvalidResponseShape reports that the operation produced data that matches
// none of the response shapes allowed for the method
type InvalidResponseShape struct {
	ProblemDetailsImpl
}

func NewInvalidResponseShape(detail, traceID string) *InvalidResponseShape {
	return &InvalidResponseShape{
		ProblemDetailsImpl: newProblem("InvalidResponseShape", "Invalid Response Shape", http.StatusInternalServerError, detail, traceID),
	}
}

// NoObjectData reports that source data for an object was missing or
// malformed while mapping it onto its model
type NoObjectData struct {
	ProblemDetailsImpl
}

func NewNoObjectData(detail, traceID string) *NoObjectData {
	return &NoObjectData{
		ProblemDetailsImpl: newProblem("NoObjectData", "No Object Data", http.StatusInternalServerError, detail, traceID),
	}
}

// NoSuchObject reports that the referenced object does not exist
type NoSuchObject struct {
	ProblemDetailsImpl
}

func NewNoSuchObject(detail, traceID string) *NoSuchObject {
	return &NoSuchObject{
		ProblemDetailsImpl: newProblem("NoSuchObject", "No Such Object", http.StatusNotFound, detail, traceID),
	}
}

// InternalError reports that there has been an error during the operation execution
type InternalError struct {
	ProblemDetailsImpl
}

func (ie InternalError) Error() string {
	return ie.detail
}

func NewInternalError(detail, traceID string) *InternalError {
	return &InternalError{
		ProblemDetailsImpl: newProblem("InternalError", "Internal Error", http.StatusInternalServerError, detail, traceID),
	}
}

// ReportNewInternalError creates an InternalError instance and sends it to the supplied http.ResponseWriter
func ReportNewInternalError(w http.ResponseWriter, detail, traceID string) {
	ie := NewInternalError(detail, traceID)
	ie.WriteResponse(w)
}

// NewProblemFromError converts a pipeline error into the problem report that
// should be delivered to the requesting party. Trusted viewers receive the
// full error message, others get a sanitized summary that leaks no details
// about models, processors or permission internals.
func NewProblemFromError(err error, traceID string, trustedViewer bool) ProblemDetails {
	detail := func(sanitized string) string {
		if trustedViewer {
			return err.Error()
		}
		return sanitized
	}

	affected := AffectedProperties(err)

	switch {
	case errors.Is(err, ErrParseFailure):
		return NewRequestParseFailure(detail("the request could not be understood"), traceID)
	case errors.Is(err, ErrNotPermitted):
		return NewOperationNotPermitted(detail("the requested operation is not available"), traceID)
	case errors.Is(err, ErrPermissionDenied):
		return NewPermissionDenied(detail("access denied"), traceID)
	case errors.Is(err, ErrInvalidFields):
		return NewInvalidFieldsRequested(detail("one or more requested fields are invalid: "+strings.Join(affected, ", ")), traceID)
	case errors.Is(err, ErrPropertiesRemoved):
		return NewProcessorRemovedProperties(detail("one or more properties were rejected: "+strings.Join(affected, ", ")), traceID)
	case errors.Is(err, ErrResponseShape):
		return NewInvalidResponseShape(detail("the operation produced an unexpected result"), traceID)
	case errors.Is(err, ErrNoObjectData):
		return NewNoObjectData(detail("object data could not be loaded"), traceID)
	case errors.Is(err, ErrNotFound):
		return NewNoSuchObject(detail("no such object"), traceID)
	default:
		return NewInternalError(detail("an internal error occurred"), traceID)
	}
}

// ContentType returns the ContentType to be used when returning this problem
func (p *ProblemDetailsImpl) ContentType() string {
	return ProblemReportContentType
}

func (p *ProblemDetailsImpl) Type() string   { return p.typ }
func (p *ProblemDetailsImpl) Title() string  { return p.title }
func (p *ProblemDetailsImpl) Detail() string { return p.detail }

// MarshalJSON is called when a ProblemDetailsImpl instance should be serialized to JSON
func (p *ProblemDetailsImpl) MarshalJSON() ([]byte, error) {
	var traceID *string

	if p.traceID != "" {
		traceID = &p.traceID
	}

	j, err := json.Marshal(struct {
		Type    string  `json:"type"`
		Title   string  `json:"title"`
		Detail  string  `json:"detail"`
		TraceID *string `json:"traceID,omitempty"`
	}{
		Type:    p.typ,
		Title:   p.title,
		Detail:  p.detail,
		TraceID: traceID,
	})
	if err != nil {
		return nil, err
	}

	return j, nil
}

// ResponseCode returns the HTTP response code to be used when returning a specific problem
func (p *ProblemDetailsImpl) ResponseCode() int {
	if p.code != 0 {
		return p.code
	}

	return http.StatusBadRequest
}

// WriteResponse writes the contents of this instance to a http.ResponseWriter
func (p *ProblemDetailsImpl) WriteResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", p.ContentType())
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}
