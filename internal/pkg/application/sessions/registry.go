package sessions

import (
	"context"
	"sync"

	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	"golang.org/x/sync/singleflight"
)

// Registry hands out context instances. Identical credentials always map to
// the same instance, and concurrent requests for a not yet existing instance
// collapse into a single authentication.
type Registry struct {
	inputs     []InputContext
	cache      storage.Cache
	dispatcher *observers.Dispatcher

	group     singleflight.Group
	mu        sync.RWMutex
	instances map[string]*Context

	errorOnce     sync.Once
	errorInstance *Context
}

func NewRegistry(cache storage.Cache, dispatcher *observers.Dispatcher, inputs ...InputContext) *Registry {
	return &Registry{
		inputs:     inputs,
		cache:      cache,
		dispatcher: dispatcher,
		instances:  map[string]*Context{},
	}
}

// Instance resolves the context for the given credential material, creating
// and memoizing it on first use.
func (r *Registry) Instance(ctx context.Context, data ContextData) (*Context, error) {
	input := r.acceptingInput(data)
	if input == nil {
		return nil, ngerrors.NewParseFailureError("no input context accepts the request credentials")
	}

	key := input.InstanceKey(data)

	r.mu.RLock()
	instance, ok := r.instances[key]
	r.mu.RUnlock()

	if ok {
		return instance, nil
	}

	created, err, _ := r.group.Do(key, func() (any, error) {
		viewer, err := input.Authenticate(ctx, data)
		if err != nil {
			return nil, err
		}

		instance := &Context{
			viewer:        viewer,
			requestID:     hashString("rid:" + viewer.CacheKey()),
			allowOverride: input.AllowsMethodOverride(),
			output:        input.Output,
			cache:         r.cache,
		}

		r.mu.Lock()
		r.instances[key] = instance
		r.mu.Unlock()

		if r.dispatcher != nil {
			r.dispatcher.Dispatch(ctx, observers.Event{
				Name: observers.EventContextCreated,
				Detail: map[string]any{
					"input":  input.Name(),
					"viewer": string(viewer.Kind()),
				},
			})
		}

		return instance, nil
	})
	if err != nil {
		return nil, err
	}

	return created.(*Context), nil
}

// ErrorInstance returns the context used to deliver failures when no real
// context could be established. It is anonymous and never caches anything.
func (r *Registry) ErrorInstance() *Context {
	r.errorOnce.Do(func() {
		r.errorInstance = &Context{
			viewer:    types.NewAnonymousViewer(),
			requestID: "error",
			errorOnly: true,
			output:    NewJSONOutput,
		}
	})

	return r.errorInstance
}

func (r *Registry) acceptingInput(data ContextData) InputContext {
	for _, input := range r.inputs {
		if input.Accepts(data) {
			return input
		}
	}
	return nil
}
