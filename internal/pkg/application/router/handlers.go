package router

import (
	"context"
	"net/http"

	"github.com/diwise/graph-gateway/pkg/graphapi"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
)

// methodHandler executes the method specific part of the pipeline. Handlers
// receive pre processed state and produce raw operation output for response
// shaping.
type methodHandler interface {
	method() string
	cachingEligible() bool
	handle(ctx context.Context, gw *Gateway, c *call) (any, error)
}

func methodHandlers() map[string]methodHandler {
	return map[string]methodHandler{
		http.MethodGet:    &getHandler{},
		http.MethodPost:   &postHandler{},
		http.MethodPut:    &putHandler{},
		http.MethodDelete: &deleteHandler{},
	}
}

type getHandler struct{}

func (h *getHandler) method() string        { return http.MethodGet }
func (h *getHandler) cachingEligible() bool { return true }

func (h *getHandler) handle(ctx context.Context, gw *Gateway, c *call) (any, error) {
	if c.parsed.Connection != "" {
		items, total, err := c.api.Related(ctx, c.base, c.parsed.Connection, c.parsed.Options)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			fillDeclaredDefaults(c.model, c.valid, item)
			filterToValid(item, c.valid)
			gw.canonicalizeURLs(c.model, item)
		}

		ds := graphapi.NewDataSet(items, total)
		ds.Limit = c.parsed.Options.Limit
		ds.Offset = c.parsed.Options.Offset

		return ds, nil
	}

	return c.api.Retrieve(ctx, c.base)
}

type postHandler struct{}

func (h *postHandler) method() string        { return http.MethodPost }
func (h *postHandler) cachingEligible() bool { return false }

func (h *postHandler) handle(ctx context.Context, gw *Gateway, c *call) (any, error) {
	owner := c.sctx.Viewer().MemberID()

	if c.parsed.Connection != "" {
		return c.api.CreateRelated(ctx, c.base, c.parsed.Connection, c.st, owner, c.request.Payload)
	}

	return c.api.Create(ctx, c.base, owner, c.request.Payload)
}

type putHandler struct{}

func (h *putHandler) method() string        { return http.MethodPut }
func (h *putHandler) cachingEligible() bool { return false }

func (h *putHandler) handle(ctx context.Context, gw *Gateway, c *call) (any, error) {
	if c.parsed.Connection != "" {
		return nil, ngerrors.NewNotPermittedError("connections can not be updated directly")
	}

	updated, missing, err := c.api.Update(ctx, c.base, c.request.Payload)
	if err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		filterToValid(updated, c.valid)
		return graphapi.NewIncomplete(updated, missing), nil
	}

	return updated, nil
}

type deleteHandler struct{}

func (h *deleteHandler) method() string        { return http.MethodDelete }
func (h *deleteHandler) cachingEligible() bool { return false }

func (h *deleteHandler) handle(ctx context.Context, gw *Gateway, c *call) (any, error) {
	if c.parsed.Connection != "" {
		return nil, ngerrors.NewNotPermittedError("connections can not be deleted directly")
	}

	return c.api.Delete(ctx, c.base)
}
