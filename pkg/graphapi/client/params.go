package client

import (
	"net/url"
	"strconv"
	"strings"
)

func Fields(fields ...string) RequestDecoratorFunc {
	return func(params []string) []string {
		if len(fields) == 0 {
			return params
		}
		return append(params, "fields="+url.QueryEscape(strings.Join(fields, ",")))
	}
}

// Expand requests that a connection is expanded inline in the result. The
// directives use the same syntax as the fields parameter, for instance
// "friends.fields(id,name).limit(5)".
func Expand(directive string) RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "fields="+url.QueryEscape(directive))
	}
}

func Limit(limit uint64) RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "limit="+strconv.FormatUint(limit, 10))
	}
}

func Offset(offset uint64) RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "offset="+strconv.FormatUint(offset, 10))
	}
}

func Pretty() RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "pretty=true")
	}
}

// DebugPayload asks the gateway to wrap the response in a debug envelope.
// Only honored for viewers with debugging enabled.
func DebugPayload() RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "debug=true")
	}
}

// MethodOverride tunnels a write method through the query string, for
// callers that can only issue GET requests.
func MethodOverride(method string) RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, "method="+url.QueryEscape(method))
	}
}
