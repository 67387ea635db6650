package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"

	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns
var anyInput = expects.AnyInput
var method = expects.RequestMethod
var path = expects.RequestPath
var body = expects.RequestBody
var queryparam = expects.QueryParamEquals

func TestRetrieveObject(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/api/v1/me"),
			queryparam("fields", "id,name"),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"id":"1001","name":"Ada"}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL(), AccessToken("token-ada"))

	object, err := c.Retrieve(context.Background(), "me", Fields("id", "name"))

	is.NoErr(err)
	is.Equal(object.Property("name"), "Ada")
}

func TestRetrieveSendsBearerToken(t *testing.T) {
	is := is.New(t)

	tokenSeen := ""
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenSeen = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1001"}`))
	}))
	defer s.Close()

	c := NewGraphClient(s.URL, AccessToken("token-ada"))

	_, err := c.Retrieve(context.Background(), "me")

	is.NoErr(err)
	is.Equal(tokenSeen, "Bearer token-ada")
}

func TestRetrieveTurnsProblemReportsIntoErrors(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/problem+json"),
			response.Code(http.StatusForbidden),
			response.Body([]byte(`{"type":"https://diwise.github.io/graph-gateway/errors/PermissionDenied","title":"PermissionDenied","detail":"access denied"}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL())

	_, err := c.Retrieve(context.Background(), "1001")

	is.True(err != nil)
	is.True(errors.Is(err, ngerrors.ErrPermissionDenied))
}

func TestRelatedReturnsDataSet(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodGet),
			path("/api/v1/me/friends"),
			queryparam("limit", "5"),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"items":[{"id":"2"},{"id":"3"}],"totalCount":7}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL(), AccessToken("token-ada"))

	dataset, err := c.Related(context.Background(), "me", "friends", Limit(5))

	is.NoErr(err)
	is.Equal(len(dataset.Items), 2)
	is.Equal(dataset.Total, int64(7))
}

func TestCreateObject(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			path("/api/v1/me/posts"),
			body(`{"title":"hello"}`),
		),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusCreated),
			response.Body([]byte(`{"id":"42","title":"hello"}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL(), AccessToken("token-ada"))

	object, err := c.Create(context.Background(), "me/posts", map[string]any{"title": "hello"})

	is.NoErr(err)
	is.Equal(object.Property("id"), "42")
}

func TestCreateFailsOnNon201Success(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, anyInput()),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`{"id":"42"}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL())

	_, err := c.Create(context.Background(), "me/posts", map[string]any{"title": "hello"})

	is.True(err != nil)
	is.True(errors.Is(err, ngerrors.ErrInternal))
}

func TestUpdateReportsMissingProperties(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodPut), path("/api/v1/42")),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusMultiStatus),
			response.Body([]byte(`{"properties":{"id":"42","title":"hello"},"missing":["location"]}`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL(), AccessToken("token-ada"))

	updated, missing, err := c.Update(context.Background(), "42", map[string]any{"title": "hello", "location": "x"})

	is.NoErr(err)
	is.Equal(updated["title"], "hello")
	is.Equal(missing, []string{"location"})
}

func TestDeleteObject(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(is, method(http.MethodDelete), path("/api/v1/42")),
		Returns(
			response.ContentType("application/json"),
			response.Code(http.StatusOK),
			response.Body([]byte(`true`)),
		),
	)
	defer s.Close()

	c := NewGraphClient(s.URL(), AccessToken("token-ada"))

	deleted, err := c.Delete(context.Background(), "42")

	is.NoErr(err)
	is.True(deleted)
}

func TestClearCachesSendsPurgeHeaderAndServiceKey(t *testing.T) {
	is := is.New(t)

	purgeSeen := ""
	keySeen := ""
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		purgeSeen = r.Header.Get("X-Cache-Purge")
		keySeen = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"caches cleared"}`))
	}))
	defer s.Close()

	c := NewGraphClient(s.URL, ServiceKey("key-importer"))

	operation, err := c.ClearCaches(context.Background(), "me")

	is.NoErr(err)
	is.True(operation.Success)
	is.Equal(purgeSeen, "true")
	is.Equal(keySeen, "key-importer")
}
