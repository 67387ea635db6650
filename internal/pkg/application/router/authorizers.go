package router

import (
	"context"
	"fmt"

	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// AuthorizerRule gates an operation after permission filtering. A rule may
// fail the request outright or narrow the valid property set further.
type AuthorizerRule interface {
	Name() string
	Authorize(ctx context.Context, viewer types.Viewer, object permissions.ObjectInfo, valid types.PropertyList) (types.PropertyList, error)
}

// builtinAuthorizers returns the rules that models may name out of the box.
// The three ownership rules differ only in what models call them.
func builtinAuthorizers() map[string]AuthorizerRule {
	rules := map[string]AuthorizerRule{}

	for _, name := range []string{"self-or-system", "author-or-system", "owner-or-system"} {
		rules[name] = &ownerGate{name: name}
	}

	return rules
}

type ownerGate struct {
	name string
}

func (g *ownerGate) Name() string { return g.name }

func (g *ownerGate) Authorize(ctx context.Context, viewer types.Viewer, object permissions.ObjectInfo, valid types.PropertyList) (types.PropertyList, error) {
	if viewer.Kind() == types.ViewerSystem {
		return valid, nil
	}

	if viewer.Kind() == types.ViewerMember && viewer.Authenticated() &&
		object.Owner != 0 && object.Owner == viewer.MemberID() {
		return valid, nil
	}

	return valid, ngerrors.NewPermissionDeniedError(
		fmt.Sprintf("only the owner of %s %s may perform this operation", object.Type, object.ID),
	)
}
