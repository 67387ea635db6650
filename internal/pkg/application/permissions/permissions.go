// Package permissions computes the permission flag for a viewer acting on a
// graph object. The decision logic lives in a rego policy so that deployments
// can replace it without rebuilding the gateway.
package permissions

import (
	"context"
	"fmt"
	"io"

	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("graph-gateway/permissions")

// ObjectInfo is the object side of a permission decision. Owner is zero for
// objects that do not exist yet.
type ObjectInfo struct {
	Type  string
	ID    string
	Owner uint64
}

type Resolver interface {
	Flag(ctx context.Context, viewer types.Viewer, object ObjectInfo, method string) (types.PermissionFlag, error)
}

type resolverImpl struct {
	preparedQuery rego.PreparedEvalQuery
}

func NewResolver(ctx context.Context, policies io.Reader) (Resolver, error) {

	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	impl := &resolverImpl{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.graphgateway.authz.flag"),
		rego.Module("graphgateway.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (r *resolverImpl) Flag(ctx context.Context, viewer types.Viewer, object ObjectInfo, method string) (types.PermissionFlag, error) {
	var err error

	_, span := tracer.Start(ctx, "resolve-flag")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	input := map[string]any{
		"method": method,
		"viewer": map[string]any{
			"kind":          string(viewer.Kind()),
			"memberId":      viewer.MemberID(),
			"authenticated": viewer.Authenticated(),
		},
		"object": map[string]any{
			"type":  object.Type,
			"id":    object.ID,
			"owner": object.Owner,
		},
	}

	results, err := r.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return types.FlagNone, err
	}

	if len(results) == 0 {
		err = fmt.Errorf("flag resolution failed: opa query could not be satisfied")
		return types.FlagNone, err
	}

	binding := results[0].Bindings["x"]

	// Policies may answer with false to deny any flag at all.
	if denied, ok := binding.(bool); ok && !denied {
		return types.FlagNone, nil
	}

	flag, ok := binding.(string)
	if !ok {
		err = fmt.Errorf("opa error: unexpected result type %T", binding)
		return types.FlagNone, err
	}

	return types.PermissionFlag(flag), nil
}
