// Package requests resolves raw entity strings into typed, validated
// request descriptions. Everything downstream of the parser works on object
// references, never on entity strings.
package requests

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/directory"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/ident"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

// TypeResolver maps between type names, type codes and the object structs
// registered in the gateway configuration.
type TypeResolver interface {
	StructByCode(code uint16) (types.ObjectStruct, bool)
	StructByName(name string) (types.ObjectStruct, bool)
	CodeByName(name string) (uint16, bool)
}

// ParsedRequest is the outcome of parsing one request.
type ParsedRequest struct {
	Entity      string
	UUID        string
	ReferenceID string
	Struct      types.ObjectStruct
	Connection  string
	Method      string
	Overridden  bool
	Options     Options
	RawQuery    string

	// CacheEligible marks requests whose full result may be memoized in the
	// request cache of their context.
	CacheEligible bool
}

// CacheKey returns the memoization key for cache eligible requests.
func (pr *ParsedRequest) CacheKey() string {
	return pr.Method + " " + pr.Entity
}

type Parser struct {
	types     TypeResolver
	directory directory.Directory
	maxLimit  int
}

func NewParser(resolver TypeResolver, dir directory.Directory, maxLimit int) *Parser {
	if maxLimit < 1 {
		maxLimit = 500
	}

	return &Parser{
		types:     resolver,
		directory: dir,
		maxLimit:  maxLimit,
	}
}

var aliasPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]{0,30}$`)

// Parse resolves an entity string of the form
// "<reference>[/<connection>][?<options>]" under the given context.
func (p *Parser) Parse(ctx context.Context, sctx *sessions.Context, method, rawEntity string) (*ParsedRequest, error) {
	if rawEntity == "" {
		return nil, ngerrors.NewParseFailureError("empty entity string")
	}

	path, rawQuery, _ := strings.Cut(rawEntity, "?")
	path = strings.Trim(path, "/")

	if path == "" {
		return nil, ngerrors.NewParseFailureError("entity string carries no object reference")
	}

	segments := strings.Split(path, "/")
	if len(segments) > 2 {
		return nil, ngerrors.NewParseFailureError(fmt.Sprintf("too many path segments in %q", path))
	}

	parsed := &ParsedRequest{
		Entity:   rawEntity,
		Method:   method,
		RawQuery: rawQuery,
	}

	err := p.resolveReference(ctx, sctx, segments[0], parsed)
	if err != nil {
		return nil, err
	}

	if len(segments) == 2 {
		if segments[1] == "" {
			return nil, ngerrors.NewParseFailureError("empty connection name")
		}
		parsed.Connection = segments[1]
	}

	parsed.Options, err = p.parseOptions(rawQuery)
	if err != nil {
		return nil, err
	}

	err = p.applyMethodOverride(sctx, parsed)
	if err != nil {
		return nil, err
	}

	return parsed, nil
}

// resolveReference applies the reference resolution rules to the first path
// segment: graph uuids decode to their type and id, undecodable uuids with a
// zero prefix are pictures, other undecodable uuids are posts, plain numbers
// are member ids, "me" is the authenticated member and anything else is
// looked up as a member alias.
func (p *Parser) resolveReference(ctx context.Context, sctx *sessions.Context, reference string, parsed *ParsedRequest) error {
	if typeCode, id, err := ident.Decode(reference); err == nil {
		st, ok := p.types.StructByCode(typeCode)
		if !ok {
			return ngerrors.NewParseFailureError(fmt.Sprintf("no object type registered for code %d", typeCode))
		}

		parsed.UUID = strings.ToLower(reference)
		parsed.ReferenceID = strconv.FormatUint(id, 10)
		parsed.Struct = st
		return nil
	}

	if ident.IsUUID(reference) {
		if ident.HasZeroPrefix(reference) {
			id, err := ident.IDPortion(reference)
			if err != nil {
				return ngerrors.NewParseFailureError("unreadable picture reference")
			}

			return p.assignStruct(parsed, types.TypePicture, strings.ToLower(reference), strconv.FormatUint(id, 10))
		}

		return p.assignStruct(parsed, types.TypePost, strings.ToLower(reference), strings.ToLower(reference))
	}

	if memberID, err := strconv.ParseUint(reference, 10, 64); err == nil {
		if memberID == 0 {
			return ngerrors.NewParseFailureError("member ids start at one")
		}
		return p.assignMember(parsed, memberID, false)
	}

	if reference == "me" {
		viewer := sctx.Viewer()
		if viewer.Kind() != types.ViewerMember || !viewer.Authenticated() {
			return ngerrors.NewParseFailureError("the me reference requires an authenticated member")
		}
		return p.assignMember(parsed, viewer.MemberID(), true)
	}

	if !aliasPattern.MatchString(reference) {
		return ngerrors.NewParseFailureError(fmt.Sprintf("unresolvable object reference %q", reference))
	}

	memberID, err := p.directory.MemberByAlias(ctx, reference)
	if errors.Is(err, directory.ErrAliasNotFound) {
		return ngerrors.NewParseFailureError(fmt.Sprintf("unknown alias %q", reference))
	}
	if err != nil {
		return err
	}

	return p.assignMember(parsed, memberID, false)
}

func (p *Parser) assignMember(parsed *ParsedRequest, memberID uint64, cacheEligible bool) error {
	code, ok := p.types.CodeByName(types.TypeMember)
	if !ok {
		return ngerrors.NewParseFailureError("the member type is not registered")
	}

	parsed.UUID = ident.EncodeString(code, memberID)
	parsed.ReferenceID = strconv.FormatUint(memberID, 10)
	parsed.CacheEligible = cacheEligible

	st, ok := p.types.StructByName(types.TypeMember)
	if !ok {
		return ngerrors.NewParseFailureError("the member type is not registered")
	}
	parsed.Struct = st

	return nil
}

func (p *Parser) assignStruct(parsed *ParsedRequest, typeName, uuid, referenceID string) error {
	st, ok := p.types.StructByName(typeName)
	if !ok {
		return ngerrors.NewParseFailureError(fmt.Sprintf("the %s type is not registered", typeName))
	}

	parsed.UUID = uuid
	parsed.ReferenceID = referenceID
	parsed.Struct = st

	return nil
}

func (p *Parser) applyMethodOverride(sctx *sessions.Context, parsed *ParsedRequest) error {
	override := strings.ToUpper(parsed.Options.Params["method"])
	if override == "" {
		return nil
	}

	if parsed.Method != http.MethodGet {
		return ngerrors.NewParseFailureError("the method option only applies to GET requests")
	}

	switch override {
	case http.MethodGet:
		return nil
	case http.MethodPost, http.MethodDelete:
	default:
		return ngerrors.NewParseFailureError(fmt.Sprintf("unsupported method override %q", override))
	}

	if !sctx.AllowsMethodOverride() {
		return ngerrors.NewParseFailureError("this context may not override request methods")
	}

	parsed.Method = override
	parsed.Overridden = true
	parsed.CacheEligible = false

	return nil
}

// ModelView is the slice of an object model the parser needs for option
// validation.
type ModelView interface {
	HasProperty(name string) bool
}

// OptionPreprocessor lets an object API rewrite request options before they
// are validated. The returned overrides replace same named parameters.
type OptionPreprocessor interface {
	PreprocessOptions(ctx context.Context, params map[string]string) (map[string]string, error)
}

// ValidateOptions validates the parsed options against the object model,
// after running them through an optional option preprocessor. Unknown
// requested fields fail as one aggregated error naming all of them.
func (p *Parser) ValidateOptions(ctx context.Context, model ModelView, parsed *ParsedRequest, pre OptionPreprocessor) error {
	if pre != nil {
		overrides, err := pre.PreprocessOptions(ctx, parsed.Options.Params)
		if err != nil {
			return err
		}

		if len(overrides) > 0 {
			values := url.Values{}
			for name, value := range parsed.Options.Params {
				values.Set(name, value)
			}
			for name, value := range overrides {
				values.Set(name, value)
			}

			reparsed, err := p.optionsFromValues(values)
			if err != nil {
				return err
			}
			parsed.Options = reparsed
		}
	}

	unknown := []string{}
	for _, field := range parsed.Options.Fields {
		if !model.HasProperty(field) {
			unknown = append(unknown, field)
		}
	}

	if len(unknown) > 0 {
		return ngerrors.NewInvalidFieldsError(
			fmt.Sprintf("unknown fields requested: %s", strings.Join(unknown, ", ")),
			unknown...,
		)
	}

	return nil
}
