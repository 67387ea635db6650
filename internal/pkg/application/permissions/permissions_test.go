package permissions

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	"github.com/matryer/is"
)

func TestSystemViewersGetTheSystemFlag(t *testing.T) {
	is, ctx, resolver := setupResolver(t)

	flag, err := resolver.Flag(ctx, types.NewSystemViewer("importer"), post90125, http.MethodGet)
	is.NoErr(err)
	is.Equal(flag, types.FlagSystem)
}

func TestOwnersGetTheOwnerFlag(t *testing.T) {
	is, ctx, resolver := setupResolver(t)

	flag, err := resolver.Flag(ctx, types.NewMemberViewer(17), post90125, http.MethodPut)
	is.NoErr(err)
	is.Equal(flag, types.FlagOwner)
}

func TestOtherMembersGetTheMemberFlag(t *testing.T) {
	is, ctx, resolver := setupResolver(t)

	flag, err := resolver.Flag(ctx, types.NewMemberViewer(99), post90125, http.MethodGet)
	is.NoErr(err)
	is.Equal(flag, types.FlagMember)
}

func TestAnonymousViewersGetThePublicFlag(t *testing.T) {
	is, ctx, resolver := setupResolver(t)

	flag, err := resolver.Flag(ctx, types.NewAnonymousViewer(), post90125, http.MethodGet)
	is.NoErr(err)
	is.Equal(flag, types.FlagPublic)
}

func TestLoggedOutMembersGetThePublicFlag(t *testing.T) {
	is, ctx, resolver := setupResolver(t)

	flag, err := resolver.Flag(ctx, types.NewMemberViewer(17, types.LoggedOut()), post90125, http.MethodPut)
	is.NoErr(err)
	is.Equal(flag, types.FlagPublic)
}

func TestPoliciesMayDenyOutright(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	denyAll := `package graphgateway.authz
default flag = false
`

	resolver, err := NewResolver(ctx, bytes.NewBufferString(denyAll))
	is.NoErr(err)

	flag, err := resolver.Flag(ctx, types.NewMemberViewer(17), post90125, http.MethodGet)
	is.NoErr(err)
	is.Equal(flag, types.FlagNone)
}

var post90125 = ObjectInfo{Type: "post", ID: "90125", Owner: 17}

func setupResolver(t *testing.T) (*is.I, context.Context, Resolver) {
	is := is.New(t)
	ctx := context.Background()

	resolver, err := NewResolver(ctx, DefaultPolicy())
	is.NoErr(err)

	return is, ctx, resolver
}
