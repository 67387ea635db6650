package sessions

import (
	"context"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// InputContext is one way of establishing an execution context from request
// credentials. Candidates are tried in registration order and the first one
// that accepts the credential material wins.
type InputContext interface {
	Name() string
	Accepts(data ContextData) bool
	InstanceKey(data ContextData) string
	Authenticate(ctx context.Context, data ContextData) (types.Viewer, error)
	AllowsMethodOverride() bool
	Output(options map[string]string) Output
}

// Authenticator turns a bearer token into a viewer. Token verification
// internals live behind this interface.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Viewer, error)
}

type tokenInput struct {
	authenticator Authenticator
}

// NewTokenInput creates the input context for requests carrying a bearer
// token.
func NewTokenInput(authenticator Authenticator) InputContext {
	return &tokenInput{authenticator: authenticator}
}

func (t *tokenInput) Name() string { return "token" }

func (t *tokenInput) Accepts(data ContextData) bool {
	return data.Token != ""
}

func (t *tokenInput) InstanceKey(data ContextData) string {
	return "token:" + hashString(data.Token)
}

func (t *tokenInput) Authenticate(ctx context.Context, data ContextData) (types.Viewer, error) {
	return t.authenticator.Authenticate(ctx, data.Token)
}

func (t *tokenInput) AllowsMethodOverride() bool { return true }

func (t *tokenInput) Output(options map[string]string) Output {
	return NewJSONOutput(options)
}

type serviceInput struct {
	keys map[string]string
}

// NewServiceInput creates the input context for backend services that
// authenticate with an api key. The keys map api keys to service names.
func NewServiceInput(keys map[string]string) InputContext {
	return &serviceInput{keys: keys}
}

func (s *serviceInput) Name() string { return "service" }

func (s *serviceInput) Accepts(data ContextData) bool {
	return data.APIKey != ""
}

func (s *serviceInput) InstanceKey(data ContextData) string {
	return "service:" + hashString(data.APIKey)
}

func (s *serviceInput) Authenticate(ctx context.Context, data ContextData) (types.Viewer, error) {
	name, ok := s.keys[data.APIKey]
	if !ok {
		return nil, ngerrors.NewPermissionDeniedError("unknown service key")
	}

	return types.NewSystemViewer(name), nil
}

func (s *serviceInput) AllowsMethodOverride() bool { return true }

func (s *serviceInput) Output(options map[string]string) Output {
	return NewJSONOutput(options)
}

type anonymousInput struct{}

// NewAnonymousInput creates the input context for requests without any
// credentials at all. Anonymous requests may never override their method.
func NewAnonymousInput() InputContext {
	return &anonymousInput{}
}

func (a *anonymousInput) Name() string { return "anonymous" }

func (a *anonymousInput) Accepts(data ContextData) bool {
	return data.Token == "" && data.APIKey == ""
}

func (a *anonymousInput) InstanceKey(data ContextData) string {
	return "anonymous"
}

func (a *anonymousInput) Authenticate(ctx context.Context, data ContextData) (types.Viewer, error) {
	return types.NewAnonymousViewer(), nil
}

func (a *anonymousInput) AllowsMethodOverride() bool { return false }

func (a *anonymousInput) Output(options map[string]string) Output {
	return NewJSONOutput(options)
}

// MemberToken describes one entry in a static token table.
type MemberToken struct {
	MemberID uint64
	Debug    bool
	Expired  bool
}

type staticTokens struct {
	tokens map[string]MemberToken
}

// NewStaticTokens authenticates bearer tokens against a fixed table. Expired
// entries produce identified but logged out viewers.
func NewStaticTokens(tokens map[string]MemberToken) Authenticator {
	return &staticTokens{tokens: tokens}
}

func (s *staticTokens) Authenticate(ctx context.Context, token string) (types.Viewer, error) {
	claims, ok := s.tokens[token]
	if !ok {
		return nil, ngerrors.NewPermissionDeniedError("unknown access token")
	}

	decorators := []types.MemberDecoratorFunc{}
	if claims.Expired {
		decorators = append(decorators, types.LoggedOut())
	}
	if claims.Debug {
		decorators = append(decorators, types.WithDebug())
	}

	return types.NewMemberViewer(claims.MemberID, decorators...), nil
}
