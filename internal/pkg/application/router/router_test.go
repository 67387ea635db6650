package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/diwise/graph-gateway/internal/pkg/application/models"
	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	"github.com/diwise/graph-gateway/internal/pkg/application/processors"
	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/directory"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"

	"github.com/matryer/is"
)

func TestRetrieveReturnsExactlyTheRequestedFields(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodGet, "me?fields=id,name", nil)

	is.Equal(delivery.Code, http.StatusOK)
	is.Equal(string(delivery.Body), `{"id":"1001","name":"Ada"}`)
}

func TestAnonymousViewersMayNotUseTheMeReference(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "me", nil)

	is.Equal(delivery.Code, http.StatusBadRequest)
	is.True(strings.Contains(string(delivery.Body), "RequestParseFailure"))
	is.True(!strings.Contains(string(delivery.Body), "authenticated member"))
}

func TestAnonymousViewersOnlySeePublicProperties(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "1001?fields=id,name,email", nil)

	is.Equal(delivery.Code, http.StatusOK)

	object := decodeObject(is, delivery.Body)
	is.Equal(object["name"], "Ada")
	_, hasEmail := object["email"]
	is.True(!hasEmail)
}

func TestEmailsAreRedactedForNonOwners(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asGrace, http.MethodGet, "1001?fields=id,email", nil)

	is.Equal(delivery.Code, http.StatusOK)

	object := decodeObject(is, delivery.Body)
	is.Equal(object["email"], "a***@example.com")
}

func TestAliasesResolveToMembers(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "ada?fields=id,name", nil)

	is.Equal(delivery.Code, http.StatusOK)
	is.Equal(string(delivery.Body), `{"id":"1001","name":"Ada"}`)
}

func TestUnknownAliasesFailAsParseErrors(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "charles", nil)

	is.Equal(delivery.Code, http.StatusBadRequest)
	is.True(strings.Contains(string(delivery.Body), "RequestParseFailure"))
}

func TestConfiguredMethodRestrictionsAreEnforced(t *testing.T) {
	is, e := setupGatewayTest(t, func(cfg *Config, deps *Dependencies) {
		for i := range cfg.Types {
			if cfg.Types[i].Name == "member" {
				cfg.Types[i].Methods = []string{http.MethodGet}
			}
		}
	})

	delivery := e.do(asAda, http.MethodPut, "me", map[string]any{"name": "Ada L."})

	is.Equal(delivery.Code, http.StatusMethodNotAllowed)
}

func TestCreatePostUnderOwnCollection(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodPost, "me/posts", map[string]any{
		"title": "Hello",
		"body":  "World",
	})

	is.Equal(delivery.Code, http.StatusCreated)

	object := decodeObject(is, delivery.Body)
	is.Equal(object["title"], "Hello")
	is.Equal(object["body"], "World")
	_, hasOwner := object["ownerId"]
	is.True(!hasOwner)

	mutations := e.events.named(observers.EventObjectMutated)
	is.Equal(len(mutations), 1)
	is.Equal(mutations[0].ObjectType, "post")
}

func TestDenyWordsRejectPayloadProperties(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodPost, "me/posts", map[string]any{
		"title": "banana split",
		"body":  "a recipe",
	})

	is.Equal(delivery.Code, http.StatusUnprocessableEntity)
	is.True(strings.Contains(string(delivery.Body), "ProcessorRemovedProperties"))
	is.Equal(len(e.events.named(observers.EventObjectMutated)), 0)
}

func TestNonOwnersMayNotUpdateMembers(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asGrace, http.MethodPut, "1001", map[string]any{"name": "Mallory"})

	is.Equal(delivery.Code, http.StatusForbidden)
}

func TestOwnersUpdateThemselvesWithPreprocessing(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodPut, "me", map[string]any{"name": "  Ada Lovelace  "})

	is.Equal(delivery.Code, http.StatusOK)

	object := decodeObject(is, delivery.Body)
	is.Equal(object["name"], "Ada Lovelace")
	is.Equal(object["avatar"], "https://graph.diwise.io/avatars/ada.png")
}

func TestConnectionsCanNotBeDeletedDirectly(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodDelete, "me/friends", nil)

	is.Equal(delivery.Code, http.StatusMethodNotAllowed)
}

func TestEligibleRequestsAreMemoizedUntilPurged(t *testing.T) {
	is, e := setupGatewayTest(t)

	first := e.do(asAda, http.MethodGet, "me?fields=id,name", nil)
	is.Equal(first.Code, http.StatusOK)

	e.source.Seed("member", "1001", map[string]any{"id": "1001", "name": "Changed"})

	second := e.do(asAda, http.MethodGet, "me?fields=id,name", nil)
	is.Equal(second.Code, http.StatusOK)
	is.Equal(string(second.Body), string(first.Body))

	purge := e.do(sessions.ContextData{APIKey: "key-importer", Purge: true}, http.MethodGet, "1001", nil)
	is.Equal(purge.Code, http.StatusOK)
	is.True(strings.Contains(string(purge.Body), `"success":true`))

	third := e.do(asAda, http.MethodGet, "me?fields=id,name", nil)
	is.Equal(third.Code, http.StatusOK)
	is.True(strings.Contains(string(third.Body), "Changed"))
}

func TestCachePurgeIsReservedForSystemViewers(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(sessions.ContextData{Token: "token-ada", Purge: true}, http.MethodGet, "me", nil)

	is.Equal(delivery.Code, http.StatusForbidden)
}

func TestRequestedConnectionsAreExpandedInline(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodGet, "me?fields=id,friends.fields(id,name)", nil)

	is.Equal(delivery.Code, http.StatusOK)

	object := decodeObject(is, delivery.Body)
	friends, ok := object["friends"].(map[string]any)
	is.True(ok)
	is.Equal(friends["totalCount"], float64(2))

	items, ok := friends["items"].([]any)
	is.True(ok)
	is.Equal(len(items), 2)

	first, ok := items[0].(map[string]any)
	is.True(ok)
	is.Equal(first["name"], "Grace")
	is.Equal(len(first), 2) // id and name only
}

func TestAnonymousViewersMayNotListPictures(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "1001/pictures?fields=id", nil)

	is.Equal(delivery.Code, http.StatusForbidden)
}

func TestRewriteGatekeeperRenamesLegacyConnections(t *testing.T) {
	is, e := setupGatewayTest(t, func(cfg *Config, deps *Dependencies) {
		cfg.Gatekeepers = []GatekeeperConfig{
			{Name: "rewrite", Renames: map[string]string{"buddies": "friends"}},
		}
	})

	delivery := e.do(asAda, http.MethodGet, "me/buddies?fields=id", nil)

	is.Equal(delivery.Code, http.StatusOK)

	dataset := decodeObject(is, delivery.Body)
	is.Equal(dataset["totalCount"], float64(2))
}

func TestDefaultsGatekeeperCapsUnlimitedRequests(t *testing.T) {
	is, e := setupGatewayTest(t, func(cfg *Config, deps *Dependencies) {
		cfg.Gatekeepers = []GatekeeperConfig{
			{Name: "defaults", Limits: map[string]int{"friends": 1}},
		}
	})

	delivery := e.do(asAda, http.MethodGet, "me/friends?fields=id", nil)

	is.Equal(delivery.Code, http.StatusOK)

	dataset := decodeObject(is, delivery.Body)
	items, ok := dataset["items"].([]any)
	is.True(ok)
	is.Equal(len(items), 1)
	is.Equal(dataset["totalCount"], float64(2))
}

func TestMaintenanceGatekeeperTakesTypesOutOfRotation(t *testing.T) {
	defs := fstest.MapFS{
		"member.yaml": &fstest.MapFile{Data: []byte(maintenanceDefinition)},
	}

	is, e := setupGatewayTest(t, func(cfg *Config, deps *Dependencies) {
		cfg.Gatekeepers = []GatekeeperConfig{{Name: "maintenance"}}
		deps.Models = models.NewRegistry(defs, nil)
	})

	delivery := e.do(asDebug, http.MethodGet, "1001", nil)

	is.Equal(delivery.Code, http.StatusMethodNotAllowed)
	is.True(strings.Contains(string(delivery.Body), "being migrated"))
}

func TestUnknownGatekeepersFailConstruction(t *testing.T) {
	is := is.New(t)

	cfg := DefaultConfig()
	cfg.Gatekeepers = []GatekeeperConfig{{Name: "bouncer"}}

	_, err := New(context.Background(), cfg, newTestDependencies(t))
	is.True(err != nil)
}

func TestMethodOverrideTunnelsWritesThroughGet(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodGet, "me?method=DELETE", nil)

	is.Equal(delivery.Code, http.StatusOK)
	is.Equal(string(delivery.Body), "true")

	gone := e.do(asGrace, http.MethodGet, "1001?fields=id", nil)
	is.Equal(gone.Code, http.StatusNotFound)
}

func TestAnonymousViewersMayNotOverrideMethods(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAnonymous, http.MethodGet, "1001?method=DELETE", nil)

	is.Equal(delivery.Code, http.StatusBadRequest)
	is.True(strings.Contains(string(delivery.Body), "RequestParseFailure"))
}

func TestExpiredTokensYieldLoggedOutViewers(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(sessions.ContextData{Token: "token-expired"}, http.MethodGet, "me", nil)

	is.Equal(delivery.Code, http.StatusBadRequest)
}

func TestDebugViewersGetAnnotatedResponses(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asDebug, http.MethodGet, "me?fields=id&debug=true", nil)

	is.Equal(delivery.Code, http.StatusOK)

	envelope := decodeObject(is, delivery.Body)
	data, ok := envelope["data"].(map[string]any)
	is.True(ok)
	is.Equal(data["id"], "1001")

	_, hasDebug := envelope["debug"]
	is.True(hasDebug)
}

func TestOrdinaryViewersNeverGetDebugEnvelopes(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodGet, "me?fields=id&debug=true", nil)

	is.Equal(delivery.Code, http.StatusOK)

	object := decodeObject(is, delivery.Body)
	is.Equal(object["id"], "1001")
}

func TestEveryRequestDispatchesAFinishedEvent(t *testing.T) {
	is, e := setupGatewayTest(t)

	delivery := e.do(asAda, http.MethodGet, "me?fields=id", nil)
	is.Equal(delivery.Code, http.StatusOK)

	finished := e.events.named(observers.EventRequestFinished)
	is.Equal(len(finished), 1)
	is.Equal(finished[0].Method, http.MethodGet)
	is.Equal(len(e.events.named(observers.EventObjectMutated)), 0)
}

var (
	asAda       = sessions.ContextData{Token: "token-ada"}
	asGrace     = sessions.ContextData{Token: "token-grace"}
	asDebug     = sessions.ContextData{Token: "token-debug"}
	asAnonymous = sessions.ContextData{}
)

const maintenanceDefinition string = `
type: member
annotations:
  version: {min: 1}
  maintenance: {enabled: true, message: member objects are being migrated}
properties:
  - name: id
    annotations:
      type: {name: integer}
      default: {}
      permissions:
        GET: [public, member, owner, system]
`

type testEnv struct {
	gw     *Gateway
	source *storage.MemorySource
	events *eventRecorder
}

func (e *testEnv) do(data sessions.ContextData, method, entity string, payload map[string]any) Delivery {
	return e.gw.DoRequest(context.Background(), data, Request{
		Entity:  entity,
		Method:  method,
		Payload: payload,
	})
}

func setupGatewayTest(t *testing.T, modify ...func(cfg *Config, deps *Dependencies)) (*is.I, *testEnv) {
	is := is.New(t)

	cfg := DefaultConfig()
	cfg.BaseURL = "https://graph.diwise.io"

	deps := newTestDependencies(t)

	source := storage.NewMemorySource().
		Seed("member", "1001", map[string]any{
			"id": "1001", "name": "Ada", "email": "ada@example.com",
			"about": "polymath", "avatar": "/avatars/ada.png",
		}).
		Seed("member", "1002", map[string]any{
			"id": "1002", "name": "Grace", "email": "grace@example.com",
		}).
		Seed("member", "1003", map[string]any{"id": "1003", "name": "Linus"}).
		Seed("post", "1", map[string]any{
			"id": "1", "title": "First", "body": "hello", "ownerId": uint64(1001),
		}).
		Connect("member", "1001", "friends", "member", "1002").
		Connect("member", "1001", "friends", "member", "1003").
		Connect("member", "1001", "posts", "post", "1")

	deps.APIs = []ObjectAPI{NewSourceAPI(source)}

	events := &eventRecorder{}
	deps.Dispatcher.Attach(events)

	for _, m := range modify {
		m(cfg, &deps)
	}

	gw, err := New(context.Background(), cfg, deps)
	is.NoErr(err)

	return is, &testEnv{gw: gw, source: source, events: events}
}

func newTestDependencies(t *testing.T) Dependencies {
	is := is.New(t)

	resolver, err := permissions.NewResolver(context.Background(), permissions.DefaultPolicy())
	is.NoErr(err)

	cache := storage.NewMemoryCache()
	dispatcher := observers.NewDispatcher()

	registry := sessions.NewRegistry(cache, dispatcher,
		sessions.NewTokenInput(sessions.NewStaticTokens(map[string]sessions.MemberToken{
			"token-ada":     {MemberID: 1001},
			"token-grace":   {MemberID: 1002},
			"token-debug":   {MemberID: 1001, Debug: true},
			"token-expired": {MemberID: 1002, Expired: true},
		})),
		sessions.NewServiceInput(map[string]string{"key-importer": "importer"}),
		sessions.NewAnonymousInput(),
	)

	return Dependencies{
		Sessions:   registry,
		Models:     models.NewRegistry(nil, nil),
		Flags:      resolver,
		Processors: processors.NewManager(processors.NewDenyWords("banana")),
		Cache:      cache,
		Dispatcher: dispatcher,
		Directory:  directory.NewInMemoryDirectory().Register("ada", 1001),
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []observers.Event
}

func (r *eventRecorder) Notify(ctx context.Context, event observers.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) named(name string) []observers.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	matching := []observers.Event{}
	for _, e := range r.events {
		if e.Name == name {
			matching = append(matching, e)
		}
	}
	return matching
}

func decodeObject(is *is.I, body []byte) map[string]any {
	object := map[string]any{}
	err := json.Unmarshal(body, &object)
	is.NoErr(err)
	return object
}
