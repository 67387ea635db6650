// Package router dispatches graph requests through the full pipeline: entity
// parsing, gatekeeping, permission resolution, property filtering, method
// handling and response shaping.
package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/diwise/graph-gateway/internal/pkg/application/models"
	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	"github.com/diwise/graph-gateway/internal/pkg/application/processors"
	"github.com/diwise/graph-gateway/internal/pkg/application/requests"
	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/directory"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"
	"github.com/diwise/graph-gateway/pkg/graphapi"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("graph-gateway/router")

const (
	permissionFlagTTL = 300 * time.Second
	requestCacheTTL   = 60 * time.Second

	// connection expansion recurses through the pipeline, bounded to keep
	// cyclic graphs from expanding forever
	maxExpansionDepth = 3
)

// reservedProperties never pass from payloads into operations.
var reservedProperties = []string{"id", "uuid", "type", "connections", "permissions"}

// Request is one graph request as received from a transport.
type Request struct {
	Entity  string
	Method  string
	Payload map[string]any
}

// Delivery is the rendered outcome of a request, ready to be written to the
// requesting party.
type Delivery struct {
	Code        int
	ContentType string
	Body        []byte
}

// Dependencies collects the collaborators a gateway is assembled from.
// Sessions, Models and Flags are required, the rest defaults to in process
// implementations.
type Dependencies struct {
	Sessions   *sessions.Registry
	Models     *models.Registry
	Flags      permissions.Resolver
	Processors *processors.Manager
	Cache      storage.Cache
	Dispatcher *observers.Dispatcher
	Directory  directory.Directory

	APIs        []ObjectAPI
	Authorizers []AuthorizerRule
}

// Gateway executes graph requests. It is safe for concurrent use.
type Gateway struct {
	sessions   *sessions.Registry
	parser     *requests.Parser
	types      *typeRegistry
	models     *models.Registry
	flags      permissions.Resolver
	processors *processors.Manager
	cache      storage.Cache
	dispatcher *observers.Dispatcher

	apis        map[string]ObjectAPI
	gatekeepers []Gatekeeper
	authorizers map[string]AuthorizerRule
	handlers    map[string]methodHandler

	baseURL string
}

func New(ctx context.Context, cfg *Config, deps Dependencies) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if deps.Sessions == nil || deps.Models == nil || deps.Flags == nil {
		return nil, fmt.Errorf("a gateway requires sessions, models and a flag resolver")
	}

	if deps.Processors == nil {
		deps.Processors = processors.NewManager()
	}

	if deps.Cache == nil {
		deps.Cache = storage.NewMemoryCache()
	}

	if deps.Dispatcher == nil {
		deps.Dispatcher = observers.NewDispatcher()
	}

	if deps.Directory == nil {
		deps.Directory = directory.NewInMemoryDirectory()
	}

	gw := &Gateway{
		sessions:    deps.Sessions,
		types:       newTypeRegistry(cfg.Types),
		models:      deps.Models,
		flags:       deps.Flags,
		processors:  deps.Processors,
		cache:       deps.Cache,
		dispatcher:  deps.Dispatcher,
		apis:        map[string]ObjectAPI{},
		authorizers: builtinAuthorizers(),
		handlers:    methodHandlers(),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
	}

	gw.parser = requests.NewParser(gw.types, deps.Directory, cfg.MaxLimit)

	for _, api := range deps.APIs {
		gw.apis[api.Name()] = api
	}

	for _, t := range cfg.Types {
		if _, ok := gw.apis[t.API]; !ok {
			return nil, fmt.Errorf("type %s names unregistered api %s", t.Name, t.API)
		}
	}

	for _, rule := range deps.Authorizers {
		gw.authorizers[rule.Name()] = rule
	}

	var err error
	gw.gatekeepers, err = buildGatekeepers(cfg.Gatekeepers, gw.models)
	if err != nil {
		return nil, err
	}

	return gw, nil
}

// call carries the evolving state of one request through the pipeline.
type call struct {
	sctx    *sessions.Context
	data    sessions.ContextData
	request Request
	started time.Time

	parsed *requests.ParsedRequest
	st     types.ObjectStruct
	base   types.ObjectRef
	object permissions.ObjectInfo

	api     ObjectAPI
	model   *models.ObjectModel
	perms   *models.PermissionsModel
	handler methodHandler

	flag      types.PermissionFlag
	requested types.PropertyList
	valid     types.PropertyList

	debug *debugRecorder
}

// cachedBody short circuits the pipeline with a previously memoized result.
type cachedBody []byte

// DoRequest runs one request through the pipeline and always returns a
// deliverable outcome, converting any failure into a problem report.
func (gw *Gateway) DoRequest(ctx context.Context, data sessions.ContextData, request Request) Delivery {
	var err error

	ctx, span := tracer.Start(ctx, "do-request")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	sctx, err := gw.sessions.Instance(ctx, data)
	if err != nil {
		return gw.deliverProblem(ctx, gw.sessions.ErrorInstance(), err)
	}

	c := &call{sctx: sctx, data: data, request: request, started: time.Now()}

	if sctx.Viewer().DebugEnabled() {
		c.debug = newDebugRecorder(sctx.Viewer())
		detach := gw.dispatcher.Attach(c.debug)
		defer detach()
	}

	result, err := gw.processRequest(ctx, c)
	if err != nil {
		return gw.deliverProblem(ctx, sctx, err)
	}

	return gw.finishRequest(ctx, c, result)
}

func (gw *Gateway) processRequest(ctx context.Context, c *call) (any, error) {
	parsed, err := gw.parser.Parse(ctx, c.sctx, c.request.Method, c.request.Entity)
	if err != nil {
		return nil, err
	}
	c.parsed = parsed
	c.stage("parsed")

	stripReservedProperties(c.request.Payload)

	for _, gatekeeper := range gw.gatekeepers {
		if !gatekeeper.Applicable(parsed) {
			continue
		}
		if err = gatekeeper.Apply(ctx, parsed, c.request.Payload); err != nil {
			return nil, err
		}
	}
	c.stage("gated")

	if parsed.Method == http.MethodGet && parsed.CacheEligible {
		if body, found := c.sctx.CachedRequest(ctx, parsed.CacheKey()); found {
			c.cacheHit()
			return cachedBody(body), nil
		}
	}

	if err = gw.resolveTarget(ctx, c); err != nil {
		return nil, err
	}
	c.stage("resolved")

	if c.data.Purge {
		return gw.clearCaches(ctx, c)
	}

	handler, ok := gw.handlers[parsed.Method]
	if !ok || !gw.types.allows(c.st.Type, parsed.Method) || !c.api.Supports(parsed.Method) {
		return nil, ngerrors.NewNotPermittedError(
			fmt.Sprintf("%s is not supported for %s objects", parsed.Method, c.st.Type),
		)
	}
	c.handler = handler

	if err = gw.preProcess(ctx, c); err != nil {
		return nil, err
	}
	c.stage("preprocessed")

	result, err := handler.handle(ctx, gw, c)
	if err != nil {
		return nil, err
	}
	c.stage("handled")

	return gw.postProcess(ctx, c, result)
}

// resolveTarget determines the effective object struct of the request. For
// connection scoped requests that is the connection's target type, possibly
// served by a different api than the base object.
func (gw *Gateway) resolveTarget(ctx context.Context, c *call) error {
	parsed := c.parsed

	c.base = types.ObjectRef{
		UUID:        parsed.UUID,
		ReferenceID: parsed.ReferenceID,
		Type:        parsed.Struct.Type,
	}
	c.st = parsed.Struct

	if parsed.Connection != "" {
		base, err := gw.models.Model(ctx, parsed.Struct.Type)
		if err != nil {
			return err
		}

		conn, ok := base.Connection(parsed.Connection)
		if !ok {
			return ngerrors.NewParseFailureError(
				fmt.Sprintf("%s objects have no %s connection", parsed.Struct.Type, parsed.Connection),
			)
		}

		target, ok := gw.types.StructByName(conn.Target)
		if !ok {
			return ngerrors.NewNoObjectDataError(
				fmt.Sprintf("connection %s targets unregistered type %s", parsed.Connection, conn.Target),
			)
		}

		if conn.API != "" {
			target.API = conn.API
		}

		c.st = target
	}

	baseAPI, ok := gw.apis[parsed.Struct.API]
	if !ok {
		return ngerrors.NewNoObjectDataError("no api registered under " + parsed.Struct.API)
	}

	c.api, ok = gw.apis[c.st.API]
	if !ok {
		return ngerrors.NewNoObjectDataError("no api registered under " + c.st.API)
	}

	// creation is the only operation whose base object may be absent
	mustExist := parsed.Method != http.MethodPost || parsed.Connection != ""

	info, err := baseAPI.Describe(ctx, c.base, mustExist)
	if err != nil {
		return err
	}
	c.object = info

	if parsed.Connection != "" {
		c.object = permissions.ObjectInfo{Type: c.st.Type}

		// collections under an object the viewer owns are also theirs
		if info.Owner != 0 && info.Owner == c.sctx.Viewer().MemberID() {
			c.object.Owner = info.Owner
		}
	}

	c.model, err = gw.models.Model(ctx, c.st.Type)
	if err != nil {
		return err
	}

	c.perms, err = gw.models.Permissions(ctx, c.st.Type)
	if err != nil {
		return err
	}

	return gw.parser.ValidateOptions(ctx, c.model, parsed, optionPreprocessor(c.api))
}

func (gw *Gateway) preProcess(ctx context.Context, c *call) error {
	var err error

	ctx, span := tracer.Start(ctx, "pre-process")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	parsed := c.parsed

	c.flag, err = gw.resolveFlag(ctx, c)
	if err != nil {
		return err
	}

	if parsed.Options.FieldsRequested() {
		c.requested = parsed.Options.Fields.Clone().Add("id")
	} else {
		c.requested = c.model.DefaultProperties().Add("id")
	}

	c.valid = c.perms.Filter(c.requested, parsed.Method, c.flag)

	for _, name := range c.model.AuthorizerRules(parsed.Method) {
		rule, ok := gw.authorizers[name]
		if !ok {
			err = fmt.Errorf("model %s names unknown authorizer rule %s", c.st.Type, name)
			return err
		}

		c.valid, err = rule.Authorize(ctx, c.sctx.Viewer(), c.object, c.valid)
		if err != nil {
			return err
		}
	}

	if !c.valid.Contains("id") {
		err = ngerrors.NewPermissionDeniedError(
			fmt.Sprintf("the viewer may not %s %s objects", parsed.Method, c.st.Type),
		)
		return err
	}

	if len(c.request.Payload) > 0 {
		restrictPayload(c.request.Payload, c.valid)
	}

	assignments := toAssignments(c.model.Preprocessors(parsed.Method))
	c.valid, _, err = gw.processors.ApplyToProperties(ctx, parsed.Method, assignments, c.valid, c.request.Payload)

	return err
}

// resolveFlag computes the permission flag of (viewer, object, method),
// reusing a memoized flag when the handler declares itself caching eligible.
func (gw *Gateway) resolveFlag(ctx context.Context, c *call) (types.PermissionFlag, error) {
	key := "processing:" + c.parsed.Method + " " + c.parsed.Entity

	if c.handler.cachingEligible() {
		if cached, found := c.sctx.CachedRequest(ctx, key); found {
			c.cacheHit()
			return types.PermissionFlag(cached), nil
		}
	}

	flag, err := gw.flags.Flag(ctx, c.sctx.Viewer(), c.object, c.parsed.Method)
	if err != nil {
		return types.FlagNone, err
	}

	c.sctx.CacheRequest(ctx, key, string(flag), permissionFlagTTL)

	return flag, nil
}

func (gw *Gateway) postProcess(ctx context.Context, c *call, result any) (any, error) {
	object, isObject := result.(map[string]any)
	if !isObject {
		// collections are filtered per item by their handler and scalar
		// outcomes carry no properties at all
		return result, nil
	}

	fillDeclaredDefaults(c.model, c.valid, object)

	if c.parsed.Method == http.MethodGet {
		if err := gw.expandConnections(ctx, c, object); err != nil {
			return nil, err
		}
	}

	filterToValid(object, c.valid)
	gw.canonicalizeURLs(c.model, object)

	assignments := toAssignments(c.model.Postprocessors(c.parsed.Method))
	return gw.processors.TransformObject(ctx, c.parsed.Method, assignments, c.valid, object)
}

type depthKey struct{}

func expansionDepth(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)
	return depth
}

// expandConnections resolves requested connection properties by running a
// nested connection request through the pipeline and embedding its result.
func (gw *Gateway) expandConnections(ctx context.Context, c *call, object map[string]any) error {
	depth := expansionDepth(ctx)
	if depth >= maxExpansionDepth {
		return nil
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	for _, name := range c.requested {
		if _, isConnection := c.model.Connection(name); !isConnection {
			continue
		}
		if !c.valid.Contains(name) {
			continue
		}

		entity := c.parsed.UUID + "/" + name + expansionQuery(c.parsed.Options.Expansions[name])

		sub := &call{
			sctx:    c.sctx,
			data:    sessions.ContextData{Token: c.data.Token, APIKey: c.data.APIKey, Origin: c.data.Origin},
			request: Request{Entity: entity, Method: http.MethodGet},
			started: time.Now(),
			debug:   c.debug,
		}

		result, err := gw.processRequest(ctx, sub)
		if err != nil {
			return err
		}

		object[name] = result
	}

	return nil
}

// expansionQuery turns the expansion directives of a field into the query
// string of its nested request.
func expansionQuery(directives map[string][]string) string {
	if len(directives) == 0 {
		return ""
	}

	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	sort.Strings(names)

	values := url.Values{}
	for _, name := range names {
		values.Set(name, strings.Join(directives[name], ","))
	}

	return "?" + values.Encode()
}

func (gw *Gateway) clearCaches(ctx context.Context, c *call) (any, error) {
	if c.sctx.Viewer().Kind() != types.ViewerSystem {
		return nil, ngerrors.NewPermissionDeniedError("cache clearing is reserved for system viewers")
	}

	removed, err := gw.cache.DelPrefix(ctx, "req:")
	if err != nil {
		return nil, err
	}

	logging.GetFromContext(ctx).Info("request caches cleared", "removed", removed)

	return graphapi.NewOperation(true, fmt.Sprintf("cleared %d cached entries", removed)), nil
}

func (gw *Gateway) finishRequest(ctx context.Context, c *call, result any) Delivery {
	output := c.sctx.Output(c.parsed.Options.Output)

	if body, ok := result.(cachedBody); ok {
		return Delivery{Code: http.StatusOK, ContentType: output.ContentType(), Body: []byte(body)}
	}

	response, err := graphapi.BuildResponse(c.parsed.Method, result)
	if err != nil {
		return gw.deliverProblem(ctx, c.sctx, err)
	}

	gw.notifyFinished(ctx, c, response)

	var renderable any = response
	if c.debug != nil && c.parsed.Options.Params["debug"] == "true" {
		renderable = map[string]any{
			"data":  response,
			"debug": c.debug.payload(time.Since(c.started)),
		}
	}

	body, err := output.Render(renderable)
	if err != nil {
		return gw.deliverProblem(ctx, c.sctx, fmt.Errorf("failed to render response: %w", err))
	}

	if c.parsed.Method == http.MethodGet && c.parsed.CacheEligible {
		c.sctx.CacheRequest(ctx, c.parsed.CacheKey(), string(body), requestCacheTTL)
	}

	return Delivery{
		Code:        statusFor(c.parsed.Method, response),
		ContentType: output.ContentType(),
		Body:        body,
	}
}

func (gw *Gateway) notifyFinished(ctx context.Context, c *call, response graphapi.Response) {
	if c.parsed.Method != http.MethodGet {
		gw.dispatcher.Dispatch(ctx, observers.Event{
			Name:       observers.EventObjectMutated,
			ObjectType: c.st.Type,
			Entity:     c.parsed.Entity,
			Method:     c.parsed.Method,
		})
	}

	gw.dispatcher.Dispatch(ctx, observers.Event{
		Name:       observers.EventRequestFinished,
		ObjectType: c.st.Type,
		Entity:     c.parsed.Entity,
		Method:     c.parsed.Method,
		Detail:     map[string]any{"shape": string(response.Shape())},
	})
}

func (gw *Gateway) deliverProblem(ctx context.Context, sctx *sessions.Context, err error) Delivery {
	viewer := sctx.Viewer()
	trusted := viewer.Kind() == types.ViewerSystem || viewer.DebugEnabled()

	traceID := ""
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.HasTraceID() {
		traceID = spanCtx.TraceID().String()
	}

	problem := ngerrors.NewProblemFromError(err, traceID, trusted)

	body, marshalErr := problem.MarshalJSON()
	if marshalErr != nil {
		body = []byte(`{}`)
	}

	logging.GetFromContext(ctx).Info("request failed", "type", problem.Type(), "err", err.Error())

	return Delivery{Code: problem.ResponseCode(), ContentType: problem.ContentType(), Body: body}
}

func statusFor(method string, response graphapi.Response) int {
	if incomplete, ok := response.(*graphapi.Incomplete); ok && incomplete.IsMultiStatus() {
		return http.StatusMultiStatus
	}

	if method == http.MethodPost {
		return http.StatusCreated
	}

	return http.StatusOK
}

func optionPreprocessor(api ObjectAPI) requests.OptionPreprocessor {
	if pre, ok := api.(requests.OptionPreprocessor); ok {
		return pre
	}
	return nil
}

func stripReservedProperties(payload map[string]any) {
	for _, name := range reservedProperties {
		delete(payload, name)
	}
}

func restrictPayload(payload map[string]any, valid types.PropertyList) {
	for name := range payload {
		if !valid.Contains(name) {
			delete(payload, name)
		}
	}
}

func filterToValid(object map[string]any, valid types.PropertyList) {
	for name := range object {
		if !valid.Contains(name) {
			delete(object, name)
		}
	}
}

// fillDeclaredDefaults materializes declared default values for selected
// properties that the source left unset.
func fillDeclaredDefaults(model *models.ObjectModel, valid types.PropertyList, object map[string]any) {
	for _, name := range valid {
		if _, present := object[name]; present {
			continue
		}

		property, ok := model.Property(name)
		if ok && property.Default != nil && property.Default.HasValue {
			object[name] = property.Default.Value
		}
	}
}

// canonicalizeURLs rewrites relative url typed property values against the
// configured base url.
func (gw *Gateway) canonicalizeURLs(model *models.ObjectModel, object map[string]any) {
	if gw.baseURL == "" {
		return
	}

	for name, value := range object {
		property, ok := model.Property(name)
		if !ok || property.Type == nil || property.Type.Kind != "url" {
			continue
		}

		if relative, ok := value.(string); ok && strings.HasPrefix(relative, "/") {
			object[name] = gw.baseURL + relative
		}
	}
}

func toAssignments(procs []models.PropertyProcessors) []processors.Assignment {
	assignments := make([]processors.Assignment, 0, len(procs))
	for _, p := range procs {
		assignments = append(assignments, processors.Assignment{Property: p.Property, Names: p.Names})
	}
	return assignments
}
