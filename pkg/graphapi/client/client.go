// Package client provides a typed client for the graph gateway api.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/diwise/graph-gateway/pkg/graphapi"
	"github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type GraphClient interface {
	Retrieve(ctx context.Context, entity string, parameters ...RequestDecoratorFunc) (*graphapi.Object, error)
	Related(ctx context.Context, entity, connection string, parameters ...RequestDecoratorFunc) (*graphapi.DataSet, error)
	Create(ctx context.Context, entity string, properties map[string]any) (*graphapi.Object, error)
	Update(ctx context.Context, entity string, properties map[string]any) (map[string]any, []string, error)
	Delete(ctx context.Context, entity string) (bool, error)
	ClearCaches(ctx context.Context, entity string) (*graphapi.Operation, error)
}

// RequestDecoratorFunc appends query parameters to an outgoing request.
type RequestDecoratorFunc func([]string) []string

func AccessToken(token string) func(*gwClient) {
	return func(c *gwClient) {
		c.token = token
	}
}

func ServiceKey(key string) func(*gwClient) {
	return func(c *gwClient) {
		c.serviceKey = key
	}
}

func Debug(enabled string) func(*gwClient) {
	return func(c *gwClient) {
		c.debug = (enabled == "true")
	}
}

func NewGraphClient(gateway string, options ...func(*gwClient)) GraphClient {
	c := &gwClient{
		baseURL: strings.TrimSuffix(gateway, "/"),
		debug:   false,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	TraceAttributeEntity string = "graph-entity"
)

var tracer = otel.Tracer("graph-gateway-client")

type gwClient struct {
	baseURL    string
	token      string
	serviceKey string
	debug      bool
}

func (c gwClient) Retrieve(ctx context.Context, entity string, parameters ...RequestDecoratorFunc) (*graphapi.Object, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-object",
		trace.WithAttributes(attribute.String(TraceAttributeEntity, entity)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callGateway(
		ctx, http.MethodGet, c.entityURL(entity, parameters), nil,
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		err = c.problemOrUnexpected(response, responseBody)
		return nil, err
	}

	object := &graphapi.Object{}
	if err = json.Unmarshal(responseBody, object); err != nil {
		err = fmt.Errorf("failed to unmarshal object: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, err
	}

	return object, nil
}

func (c gwClient) Related(ctx context.Context, entity, connection string, parameters ...RequestDecoratorFunc) (*graphapi.DataSet, error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-connection",
		trace.WithAttributes(attribute.String(TraceAttributeEntity, entity+"/"+connection)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callGateway(
		ctx, http.MethodGet, c.entityURL(entity+"/"+connection, parameters), nil,
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		err = c.problemOrUnexpected(response, responseBody)
		return nil, err
	}

	dataset := &graphapi.DataSet{}
	if err = json.Unmarshal(responseBody, dataset); err != nil {
		err = fmt.Errorf("failed to unmarshal dataset: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, err
	}

	return dataset, nil
}

func (c gwClient) Create(ctx context.Context, entity string, properties map[string]any) (*graphapi.Object, error) {
	var err error

	ctx, span := tracer.Start(ctx, "create-object",
		trace.WithAttributes(attribute.String(TraceAttributeEntity, entity)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %s (%w)", err.Error(), errors.ErrInternal)
	}

	response, responseBody, err := c.callGateway(
		ctx, http.MethodPost, c.entityURL(entity, nil), bytes.NewBuffer(payload),
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusCreated {
		err = c.problemOrUnexpected(response, responseBody)
		return nil, err
	}

	object := &graphapi.Object{}
	if err = json.Unmarshal(responseBody, object); err != nil {
		err = fmt.Errorf("failed to unmarshal created object: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, err
	}

	return object, nil
}

// Update applies properties to an object. For partially applied writes the
// returned slice names the properties the gateway could not apply.
func (c gwClient) Update(ctx context.Context, entity string, properties map[string]any) (map[string]any, []string, error) {
	var err error

	ctx, span := tracer.Start(ctx, "update-object",
		trace.WithAttributes(attribute.String(TraceAttributeEntity, entity)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := json.Marshal(properties)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal properties: %s (%w)", err.Error(), errors.ErrInternal)
	}

	response, responseBody, err := c.callGateway(
		ctx, http.MethodPut, c.entityURL(entity, nil), bytes.NewBuffer(payload),
	)
	if err != nil {
		return nil, nil, err
	}

	if response.StatusCode == http.StatusMultiStatus {
		incomplete := &graphapi.Incomplete{}
		if err = json.Unmarshal(responseBody, incomplete); err != nil {
			err = fmt.Errorf("failed to unmarshal partial result: %s (%w)", err.Error(), errors.ErrInternal)
			return nil, nil, err
		}
		return incomplete.Properties, incomplete.Missing, nil
	}

	if response.StatusCode != http.StatusOK {
		err = c.problemOrUnexpected(response, responseBody)
		return nil, nil, err
	}

	updated := map[string]any{}
	if err = json.Unmarshal(responseBody, &updated); err != nil {
		err = fmt.Errorf("failed to unmarshal updated object: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, nil, err
	}

	return updated, nil, nil
}

func (c gwClient) Delete(ctx context.Context, entity string) (bool, error) {
	var err error

	ctx, span := tracer.Start(ctx, "delete-object",
		trace.WithAttributes(attribute.String(TraceAttributeEntity, entity)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callGateway(
		ctx, http.MethodDelete, c.entityURL(entity, nil), nil,
	)
	if err != nil {
		return false, err
	}

	if response.StatusCode != http.StatusOK {
		err = c.problemOrUnexpected(response, responseBody)
		return false, err
	}

	var deleted bool
	if err = json.Unmarshal(responseBody, &deleted); err == nil {
		return deleted, nil
	}

	operation := &graphapi.Operation{}
	if err = json.Unmarshal(responseBody, operation); err != nil {
		err = fmt.Errorf("failed to unmarshal delete result: %s (%w)", err.Error(), errors.ErrInternal)
		return false, err
	}

	return operation.Success, nil
}

// ClearCaches asks the gateway to drop its memoized state. The gateway only
// honors this for service viewers.
func (c gwClient) ClearCaches(ctx context.Context, entity string) (*graphapi.Operation, error) {
	var err error

	ctx, span := tracer.Start(ctx, "clear-caches")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callGateway(
		ctx, http.MethodGet, c.entityURL(entity, nil), nil,
		func(r *http.Request) { r.Header.Set("X-Cache-Purge", "true") },
	)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		err = c.problemOrUnexpected(response, responseBody)
		return nil, err
	}

	operation := &graphapi.Operation{}
	if err = json.Unmarshal(responseBody, operation); err != nil {
		err = fmt.Errorf("failed to unmarshal operation result: %s (%w)", err.Error(), errors.ErrInternal)
		return nil, err
	}

	return operation, nil
}

func (c gwClient) entityURL(entity string, parameters []RequestDecoratorFunc) string {
	endpoint := c.baseURL + "/api/v1/" + entity

	params := []string{}
	for _, decorate := range parameters {
		params = decorate(params)
	}

	if len(params) > 0 {
		separator := "?"
		if strings.Contains(entity, "?") {
			separator = "&"
		}
		endpoint += separator + strings.Join(params, "&")
	}

	return endpoint
}

func (c gwClient) problemOrUnexpected(response *http.Response, responseBody []byte) error {
	contentType := response.Header.Get("Content-Type")

	if response.StatusCode >= http.StatusBadRequest && response.StatusCode <= http.StatusInternalServerError {
		return errors.NewErrorFromProblemReport(response.StatusCode, contentType, responseBody)
	}

	return fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, errors.ErrInternal)
}

func (c gwClient) callGateway(ctx context.Context, method, endpoint string, body io.Reader, decorators ...func(*http.Request)) (*http.Response, []byte, error) {
	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.serviceKey != "" {
		req.Header.Set("X-API-Key", c.serviceKey)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, decorate := range decorators {
		decorate(req)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrInternal)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}
