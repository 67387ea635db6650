package router

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	"github.com/diwise/graph-gateway/internal/pkg/application/requests"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// SourceAPIName is the api name types are registered under when they are
// served straight from an object source.
const SourceAPIName string = "source"

// ObjectAPI executes graph operations against one backing implementation.
// Every registered type names the api that handles it, and connections may
// override that per property.
type ObjectAPI interface {
	Name() string
	Supports(method string) bool

	// Describe resolves the permission relevant facts about a referenced
	// object. With mustExist set, a missing object is an error.
	Describe(ctx context.Context, ref types.ObjectRef, mustExist bool) (permissions.ObjectInfo, error)

	Retrieve(ctx context.Context, ref types.ObjectRef) (map[string]any, error)
	Related(ctx context.Context, ref types.ObjectRef, connection string, opts requests.Options) ([]map[string]any, int64, error)
	Create(ctx context.Context, ref types.ObjectRef, owner uint64, properties map[string]any) (map[string]any, error)
	CreateRelated(ctx context.Context, base types.ObjectRef, connection string, target types.ObjectStruct, owner uint64, properties map[string]any) (map[string]any, error)

	// Update applies properties to an existing object and returns the new
	// state together with the names of any properties it could not apply.
	Update(ctx context.Context, ref types.ObjectRef, properties map[string]any) (map[string]any, []string, error)
	Delete(ctx context.Context, ref types.ObjectRef) (bool, error)
}

type sourceAPI struct {
	source storage.ObjectSource
}

// NewSourceAPI wraps an object source in the full api contract.
func NewSourceAPI(source storage.ObjectSource) ObjectAPI {
	return &sourceAPI{source: source}
}

func (a *sourceAPI) Name() string {
	return SourceAPIName
}

func (a *sourceAPI) Supports(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (a *sourceAPI) Describe(ctx context.Context, ref types.ObjectRef, mustExist bool) (permissions.ObjectInfo, error) {
	info := permissions.ObjectInfo{Type: ref.Type, ID: ref.ReferenceID}

	properties, err := a.source.Fetch(ctx, ref.Type, ref.ReferenceID)
	if err != nil {
		if mustExist {
			return info, err
		}
		return info, nil
	}

	info.Owner = ownerOf(ref, properties)
	return info, nil
}

func (a *sourceAPI) Retrieve(ctx context.Context, ref types.ObjectRef) (map[string]any, error) {
	return a.source.Fetch(ctx, ref.Type, ref.ReferenceID)
}

func (a *sourceAPI) Related(ctx context.Context, ref types.ObjectRef, connection string, opts requests.Options) ([]map[string]any, int64, error) {
	return a.source.Related(ctx, ref.Type, ref.ReferenceID, connection, opts.Limit, opts.Offset)
}

func (a *sourceAPI) Create(ctx context.Context, ref types.ObjectRef, owner uint64, properties map[string]any) (map[string]any, error) {
	if _, err := a.source.Fetch(ctx, ref.Type, ref.ReferenceID); err == nil {
		return nil, ngerrors.NewNotPermittedError(
			fmt.Sprintf("%s %s already exists", ref.Type, ref.ReferenceID),
		)
	}

	created := clone(properties)
	created["id"] = ref.ReferenceID
	if owner != 0 {
		created["ownerId"] = owner
	}

	err := a.source.Store(ctx, ref.Type, ref.ReferenceID, created)
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (a *sourceAPI) CreateRelated(ctx context.Context, base types.ObjectRef, connection string, target types.ObjectStruct, owner uint64, properties map[string]any) (map[string]any, error) {
	id, err := a.source.NextID(ctx, target.Type)
	if err != nil {
		return nil, err
	}

	targetID := strconv.FormatUint(id, 10)

	created := clone(properties)
	created["id"] = targetID
	if owner != 0 {
		created["ownerId"] = owner
	}

	if err = a.source.Store(ctx, target.Type, targetID, created); err != nil {
		return nil, err
	}

	err = a.source.Link(ctx, base.Type, base.ReferenceID, connection, target.Type, targetID)
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (a *sourceAPI) Update(ctx context.Context, ref types.ObjectRef, properties map[string]any) (map[string]any, []string, error) {
	if _, err := a.source.Fetch(ctx, ref.Type, ref.ReferenceID); err != nil {
		return nil, nil, err
	}

	err := a.source.Store(ctx, ref.Type, ref.ReferenceID, properties)
	if err != nil {
		return nil, nil, err
	}

	updated, err := a.source.Fetch(ctx, ref.Type, ref.ReferenceID)
	if err != nil {
		return nil, nil, err
	}

	return updated, nil, nil
}

func (a *sourceAPI) Delete(ctx context.Context, ref types.ObjectRef) (bool, error) {
	return a.source.Remove(ctx, ref.Type, ref.ReferenceID)
}

// ownerOf extracts the owning member of an object. Members own themselves,
// everything else records its owner in source data.
func ownerOf(ref types.ObjectRef, properties map[string]any) uint64 {
	if ref.Type == types.TypeMember {
		id, _ := strconv.ParseUint(ref.ReferenceID, 10, 64)
		return id
	}

	return asUint64(properties["ownerId"])
}

func asUint64(value any) uint64 {
	switch v := value.(type) {
	case uint64:
		return v
	case int:
		if v >= 0 {
			return uint64(v)
		}
	case int64:
		if v >= 0 {
			return uint64(v)
		}
	case float64:
		if v >= 0 {
			return uint64(v)
		}
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func clone(properties map[string]any) map[string]any {
	c := make(map[string]any, len(properties)+2)
	for k, v := range properties {
		c[k] = v
	}
	return c
}
