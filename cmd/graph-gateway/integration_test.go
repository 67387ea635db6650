package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/diwise/service-chassis/pkg/infrastructure/servicerunner"

	"github.com/matryer/is"
)

var dowork = servicerunner.WithWorker[AppConfig]

func DefaultTestFlags() FlagMap {
	return FlagMap{
		listenAddress: "",  // listen on all ipv4 and ipv6 interfaces
		servicePort:   "0", //
		controlPort:   "",  // control port disabled by default

		logFormat: "json",
	}
}

func TestIntegrateRetrieveAuthenticatedMember(t *testing.T) {
	is := is.New(t)
	ctx, cancelTest := context.WithCancel(t.Context())

	app, err := initialize(ctx, DefaultTestFlags(), &AppConfig{
		gatewayConfig: newTestConfig(),
	})
	is.NoErr(err)

	app.Run(ctx, dowork(func(ctx context.Context, appConfig *AppConfig) error {
		defer cancelTest()

		response, responseBody := testRequest(
			appConfig.publicPort, http.MethodGet, "/api/v1/me?fields=id,name", "token-ada", nil,
		)

		is.True(response != nil)
		is.Equal(response.StatusCode, http.StatusOK)
		is.Equal(responseBody, `{"id":"1001","name":"Ada"}`)

		return nil
	}))
}

func TestIntegrateAnonymousViewersGetSanitizedProblems(t *testing.T) {
	is := is.New(t)
	ctx, cancelTest := context.WithCancel(t.Context())

	app, err := initialize(ctx, DefaultTestFlags(), &AppConfig{
		gatewayConfig: newTestConfig(),
	})
	is.NoErr(err)

	app.Run(ctx, dowork(func(ctx context.Context, appConfig *AppConfig) error {
		defer cancelTest()

		response, responseBody := testRequest(
			appConfig.publicPort, http.MethodGet, "/api/v1/me", "", nil,
		)

		is.True(response != nil)
		is.Equal(response.StatusCode, http.StatusBadRequest)
		is.True(strings.Contains(responseBody, "RequestParseFailure"))
		is.True(!strings.Contains(responseBody, "authenticated member"))

		return nil
	}))
}

func TestIntegrateForeignWritesArePermissionDenied(t *testing.T) {
	is := is.New(t)
	ctx, cancelTest := context.WithCancel(t.Context())

	app, err := initialize(ctx, DefaultTestFlags(), &AppConfig{
		gatewayConfig: newTestConfig(),
	})
	is.NoErr(err)

	app.Run(ctx, dowork(func(ctx context.Context, appConfig *AppConfig) error {
		defer cancelTest()

		payload := bytes.NewBufferString(`{"name":"Mallory"}`)

		response, responseBody := testRequest(
			appConfig.publicPort, http.MethodPut, "/api/v1/1001", "token-grace", payload,
		)

		is.True(response != nil)
		is.Equal(response.StatusCode, http.StatusForbidden)
		is.True(strings.Contains(responseBody, "PermissionDenied"))
		is.True(strings.Contains(responseBody, "access denied"))

		return nil
	}))
}

func TestIntegrateDenyWordsRejectPostProperties(t *testing.T) {
	is := is.New(t)
	ctx, cancelTest := context.WithCancel(t.Context())

	app, err := initialize(ctx, DefaultTestFlags(), &AppConfig{
		gatewayConfig: newTestConfig(),
	})
	is.NoErr(err)

	app.Run(ctx, dowork(func(ctx context.Context, appConfig *AppConfig) error {
		defer cancelTest()

		payload := bytes.NewBufferString(`{"title":"banana split","body":"a recipe"}`)

		response, responseBody := testRequest(
			appConfig.publicPort, http.MethodPost, "/api/v1/me/posts", "token-ada", payload,
		)

		is.True(response != nil)
		is.Equal(response.StatusCode, http.StatusUnprocessableEntity)
		is.True(strings.Contains(responseBody, "ProcessorRemovedProperties"))

		return nil
	}))
}

func testRequest(port, method, path, token string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, "http://127.0.0.1:"+port+path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, _ := http.DefaultClient.Do(req)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}

func newTestConfig() io.ReadCloser {
	return io.NopCloser(strings.NewReader(configFile))
}

var configFile string = `
baseUrl: https://graph.diwise.io
maxLimit: 500
types:
  - {name: member, code: 1, api: source}
  - {name: post, code: 2, api: source}
  - {name: picture, code: 3, api: source}
gatekeepers:
  - name: maintenance
denyWords: [banana]
serviceKeys:
  key-importer: importer
tokens:
  - {token: token-ada, memberId: 1001}
  - {token: token-grace, memberId: 1002}
seeds:
  - type: member
    id: "1001"
    properties: {id: "1001", name: Ada}
aliases:
  ada: 1001
`
