package requests

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
)

const (
	DefaultLimit  int = 10
	DefaultOffset int = 0
)

// ReservedOptions are the query parameters the gateway itself interprets.
// Everything else passes through untouched for option preprocessors.
var ReservedOptions = []string{"fields", "limit", "offset", "method", "pretty"}

// Options are the parsed request options.
type Options struct {
	Limit      int
	Offset     int
	Fields     types.PropertyList
	Expansions map[string]map[string][]string
	Output     map[string]string
	Params     map[string]string
}

func DefaultOptions() Options {
	return Options{
		Limit:      DefaultLimit,
		Offset:     DefaultOffset,
		Fields:     types.PropertyList{},
		Expansions: map[string]map[string][]string{},
		Output:     map[string]string{},
		Params:     map[string]string{},
	}
}

// FieldsRequested reports whether the request named any fields explicitly.
func (o Options) FieldsRequested() bool {
	return len(o.Fields) > 0
}

func (p *Parser) parseOptions(rawQuery string) (Options, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Options{}, ngerrors.NewParseFailureError("malformed query string: " + err.Error())
	}

	return p.optionsFromValues(values)
}

func (p *Parser) optionsFromValues(values url.Values) (Options, error) {
	opts := DefaultOptions()

	for name := range values {
		opts.Params[name] = values.Get(name)
	}

	if fields := values.Get("fields"); fields != "" {
		parsedFields, expansions, err := ParseFields(fields)
		if err != nil {
			return Options{}, err
		}
		opts.Fields = parsedFields
		opts.Expansions = expansions
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Options{}, ngerrors.NewParseFailureError(fmt.Sprintf("limit must be a positive integer, got %q", raw))
		}
		if limit > p.maxLimit {
			limit = p.maxLimit
		}
		opts.Limit = limit
	}

	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return Options{}, ngerrors.NewParseFailureError(fmt.Sprintf("offset must be a non negative integer, got %q", raw))
		}
		opts.Offset = offset
	}

	if values.Get("pretty") == "true" {
		opts.Output["pretty"] = "true"
	}

	return opts, nil
}

// ParseFields parses a fields expression into the requested property names
// and their expansion directives. Directives accumulate, so
// "avatar.width(100).height(80)" expands avatar with width [100] and
// height [80].
func ParseFields(expression string) (types.PropertyList, map[string]map[string][]string, error) {
	fields := types.PropertyList{}
	expansions := map[string]map[string][]string{}

	for _, item := range splitTopLevel(expression) {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, nil, ngerrors.NewParseFailureError("empty field in fields expression")
		}

		name, directives, err := parseFieldItem(item)
		if err != nil {
			return nil, nil, err
		}

		fields = fields.Add(name)

		for directive, args := range directives {
			if expansions[name] == nil {
				expansions[name] = map[string][]string{}
			}
			expansions[name][directive] = append(expansions[name][directive], args...)
		}
	}

	return fields, expansions, nil
}

func parseFieldItem(item string) (string, map[string][]string, error) {
	name, rest, hasDirectives := strings.Cut(item, ".")

	if name == "" {
		return "", nil, ngerrors.NewParseFailureError("field name missing in " + strconv.Quote(item))
	}

	if strings.ContainsAny(name, "()") {
		return "", nil, ngerrors.NewParseFailureError("directives must follow a dotted name in " + strconv.Quote(item))
	}

	directives := map[string][]string{}

	for hasDirectives {
		var directive string
		directive, rest, hasDirectives = cutDirective(rest)

		dname, args, err := parseDirective(directive, item)
		if err != nil {
			return "", nil, err
		}

		directives[dname] = append(directives[dname], args...)
	}

	return name, directives, nil
}

// cutDirective cuts the next dot separated directive off rest, keeping dots
// inside parentheses intact.
func cutDirective(rest string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '.':
			if depth == 0 {
				return rest[:i], rest[i+1:], true
			}
		}
	}
	return rest, "", false
}

func parseDirective(directive, item string) (string, []string, error) {
	open := strings.IndexByte(directive, '(')
	if open < 0 {
		if directive == "" || strings.ContainsRune(directive, ')') {
			return "", nil, ngerrors.NewParseFailureError("malformed directive in " + strconv.Quote(item))
		}
		return directive, nil, nil
	}

	name := directive[:open]
	if name == "" || !strings.HasSuffix(directive, ")") {
		return "", nil, ngerrors.NewParseFailureError("malformed directive in " + strconv.Quote(item))
	}

	inner := directive[open+1 : len(directive)-1]
	if strings.ContainsAny(inner, "()") {
		return "", nil, ngerrors.NewParseFailureError("nested parentheses in " + strconv.Quote(item))
	}

	// both comma and pipe separate directive arguments
	args := []string{}
	for _, arg := range strings.FieldsFunc(inner, func(r rune) bool { return r == ',' || r == '|' }) {
		arg = strings.TrimSpace(arg)
		if arg != "" {
			args = append(args, arg)
		}
	}

	return name, args, nil
}

// splitTopLevel splits on commas that are not nested inside parentheses.
func splitTopLevel(expression string) []string {
	items := []string{}
	depth := 0
	start := 0

	for i := 0; i < len(expression); i++ {
		switch expression[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, expression[start:i])
				start = i + 1
			}
		}
	}

	return append(items, expression[start:])
}
