package sessions

import (
	"encoding/json"
)

// Output serializes shaped results and problem reports for delivery.
type Output interface {
	ContentType() string
	Render(v any) ([]byte, error)
}

type jsonOutput struct {
	indent bool
}

// NewJSONOutput creates the standard json output. The pretty option turns on
// indentation.
func NewJSONOutput(options map[string]string) Output {
	return &jsonOutput{indent: options["pretty"] == "true"}
}

func (o *jsonOutput) ContentType() string {
	return "application/json"
}

func (o *jsonOutput) Render(v any) ([]byte, error) {
	if o.indent {
		return json.MarshalIndent(v, "", "  ")
	}

	return json.Marshal(v)
}
