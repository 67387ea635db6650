package graphapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diwise/graph-gateway/internal/pkg/application/models"
	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	"github.com/diwise/graph-gateway/internal/pkg/application/router"
	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"

	"github.com/matryer/is"
)

func TestGetRetrievesThroughTheGateway(t *testing.T) {
	is, ts := setupAPITest(t)
	defer ts.Close()

	response, body := apiRequest(is, ts, http.MethodGet, "/api/v1/me?fields=id,name", "token-ada", "")

	is.Equal(response.StatusCode, http.StatusOK)
	is.Equal(response.Header.Get("Content-Type"), "application/json")
	is.Equal(body, `{"id":"1001","name":"Ada"}`)
}

func TestBrokenPayloadsFailBeforeTheGateway(t *testing.T) {
	is, ts := setupAPITest(t)
	defer ts.Close()

	response, body := apiRequest(is, ts, http.MethodPost, "/api/v1/me/posts", "token-ada", `{"title": broken`)

	is.Equal(response.StatusCode, http.StatusBadRequest)
	is.True(strings.Contains(body, "RequestParseFailure"))
}

func TestProblemsArriveAsProblemReports(t *testing.T) {
	is, ts := setupAPITest(t)
	defer ts.Close()

	response, body := apiRequest(is, ts, http.MethodGet, "/api/v1/me", "", "")

	is.Equal(response.StatusCode, http.StatusBadRequest)
	is.Equal(response.Header.Get("Content-Type"), "application/problem+json")
	is.True(strings.Contains(body, "RequestParseFailure"))
}

func TestPurgeHeaderReachesTheGateway(t *testing.T) {
	is, ts := setupAPITest(t)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/1001", nil)
	is.NoErr(err)
	req.Header.Set("X-API-Key", "key-importer")
	req.Header.Set("X-Cache-Purge", "true")

	response, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer response.Body.Close()

	is.Equal(response.StatusCode, http.StatusOK)
}

func TestUnroutedPathsAreNotFound(t *testing.T) {
	is, ts := setupAPITest(t)
	defer ts.Close()

	response, _ := apiRequest(is, ts, http.MethodGet, "/api/v2/me", "token-ada", "")

	is.Equal(response.StatusCode, http.StatusNotFound)
}

func setupAPITest(t *testing.T) (*is.I, *httptest.Server) {
	is := is.New(t)
	ctx := context.Background()

	resolver, err := permissions.NewResolver(ctx, permissions.DefaultPolicy())
	is.NoErr(err)

	cache := storage.NewMemoryCache()
	dispatcher := observers.NewDispatcher()

	source := storage.NewMemorySource().
		Seed("member", "1001", map[string]any{"id": "1001", "name": "Ada"})

	gateway, err := router.New(ctx, router.DefaultConfig(), router.Dependencies{
		Sessions: sessions.NewRegistry(cache, dispatcher,
			sessions.NewTokenInput(sessions.NewStaticTokens(map[string]sessions.MemberToken{
				"token-ada": {MemberID: 1001},
			})),
			sessions.NewServiceInput(map[string]string{"key-importer": "importer"}),
			sessions.NewAnonymousInput(),
		),
		Models:     models.NewRegistry(nil, nil),
		Flags:      resolver,
		Cache:      cache,
		Dispatcher: dispatcher,
		APIs:       []router.ObjectAPI{router.NewSourceAPI(source)},
	})
	is.NoErr(err)

	mux := http.NewServeMux()
	err = RegisterHandlers(ctx, "graph-gateway-test", mux, gateway)
	is.NoErr(err)

	return is, httptest.NewServer(mux)
}

func apiRequest(is *is.I, ts *httptest.Server, method, path, token, payload string) (*http.Response, string) {
	var body io.Reader
	if payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	is.NoErr(err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	is.NoErr(err)

	return response, string(responseBody)
}
