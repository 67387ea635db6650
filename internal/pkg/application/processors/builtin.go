package processors

import (
	"context"
	"strings"
)

type funcProcessor struct {
	name string
	kind Kind
	fn   func(ctx context.Context, property string, value any) (Outcome, error)
}

func (p *funcProcessor) Name() string { return p.name }
func (p *funcProcessor) Kind() Kind   { return p.kind }
func (p *funcProcessor) Process(ctx context.Context, property string, value any) (Outcome, error) {
	return p.fn(ctx, property, value)
}

// NewTransform wraps a function as a value transforming processor.
func NewTransform(name string, fn func(ctx context.Context, property string, value any) (Outcome, error)) Processor {
	return &funcProcessor{name: name, kind: KindTransform, fn: fn}
}

// NewFilter wraps a function as a processor that may remove properties.
func NewFilter(name string, fn func(ctx context.Context, property string, value any) (Outcome, error)) Processor {
	return &funcProcessor{name: name, kind: KindFilter, fn: fn}
}

func builtins() []Processor {
	return []Processor{
		NewTransform("trim", func(ctx context.Context, property string, value any) (Outcome, error) {
			if s, ok := value.(string); ok {
				return Outcome{Value: strings.TrimSpace(s)}, nil
			}
			return Outcome{Value: value}, nil
		}),
		NewTransform("lowercase", func(ctx context.Context, property string, value any) (Outcome, error) {
			if s, ok := value.(string); ok {
				return Outcome{Value: strings.ToLower(s)}, nil
			}
			return Outcome{Value: value}, nil
		}),
		NewTransform("redact-email", func(ctx context.Context, property string, value any) (Outcome, error) {
			s, ok := value.(string)
			if !ok {
				return Outcome{Value: value}, nil
			}

			at := strings.IndexByte(s, '@')
			if at < 1 {
				return Outcome{Value: s}, nil
			}

			return Outcome{Value: s[0:1] + "***" + s[at:]}, nil
		}),
		NewFilter("drop-empty", func(ctx context.Context, property string, value any) (Outcome, error) {
			if value == nil {
				return Outcome{Remove: true, Message: property + " is empty"}, nil
			}
			if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
				return Outcome{Remove: true, Message: property + " is empty"}, nil
			}
			return Outcome{Value: value}, nil
		}),
		NewDenyWords(),
	}
}

// NewDenyWords creates the deny-words filter. With no configured words the
// filter passes everything through.
func NewDenyWords(words ...string) Processor {
	return NewFilter("deny-words", func(ctx context.Context, property string, value any) (Outcome, error) {
		s, ok := value.(string)
		if !ok {
			return Outcome{Value: value}, nil
		}

		lowered := strings.ToLower(s)
		for _, word := range words {
			if word != "" && strings.Contains(lowered, strings.ToLower(word)) {
				return Outcome{Remove: true, Message: property + " contains a blocked word"}, nil
			}
		}

		return Outcome{Value: value}, nil
	})
}
