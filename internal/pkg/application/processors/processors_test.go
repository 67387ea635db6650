package processors

import (
	"context"
	"errors"
	"testing"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	"github.com/matryer/is"
)

func TestTransformChainsRunInOrder(t *testing.T) {
	is, ctx, manager := setupManager(t)

	valid := types.NewPropertyList("email")
	payload := map[string]any{"email": "  Ada@Example.COM "}

	assignments := []Assignment{{Property: "email", Names: []string{"trim", "lowercase"}}}

	valid, payload, err := manager.ApplyToProperties(ctx, "PUT", assignments, valid, payload)
	is.NoErr(err)
	is.Equal(payload["email"], "ada@example.com")
	is.True(valid.Contains("email"))
}

func TestRemovalsAreAggregatedAcrossProperties(t *testing.T) {
	is, ctx, manager := setupManager(t)

	valid := types.NewPropertyList("about", "caption", "name")
	payload := map[string]any{
		"about":   "   ",
		"caption": "",
		"name":    "ada",
	}

	assignments := []Assignment{
		{Property: "about", Names: []string{"trim", "drop-empty"}},
		{Property: "caption", Names: []string{"drop-empty"}},
		{Property: "name", Names: []string{"trim"}},
	}

	valid, payload, err := manager.ApplyToProperties(ctx, "PUT", assignments, valid, payload)

	is.True(errors.Is(err, ngerrors.ErrPropertiesRemoved))
	is.Equal(ngerrors.AffectedProperties(err), []string{"about", "caption"})

	is.Equal(valid, types.PropertyList{"name"})
	is.Equal(payload["name"], "ada") // untouched properties keep processing
	_, present := payload["about"]
	is.True(!present)
}

func TestRemovalStopsTheChainForThatProperty(t *testing.T) {
	is, ctx, _ := setupManager(t)

	sentinel := NewTransform("sentinel", func(ctx context.Context, property string, value any) (Outcome, error) {
		t.Fatal("sentinel must not run after removal")
		return Outcome{Value: value}, nil
	})

	manager := NewManager(sentinel)

	valid := types.NewPropertyList("about")
	payload := map[string]any{"about": ""}

	assignments := []Assignment{{Property: "about", Names: []string{"drop-empty", "sentinel"}}}

	_, _, err := manager.ApplyToProperties(ctx, "PUT", assignments, valid, payload)
	is.True(errors.Is(err, ngerrors.ErrPropertiesRemoved))
}

func TestUnknownProcessorsFail(t *testing.T) {
	is, ctx, manager := setupManager(t)

	assignments := []Assignment{{Property: "name", Names: []string{"does-not-exist"}}}

	_, _, err := manager.ApplyToProperties(ctx, "PUT", assignments, types.NewPropertyList("name"), map[string]any{"name": "x"})
	is.True(err != nil)
	is.True(!errors.Is(err, ngerrors.ErrPropertiesRemoved))
}

func TestTransformObjectSkipsFilters(t *testing.T) {
	is, ctx, manager := setupManager(t)

	valid := types.NewPropertyList("email", "about")
	object := map[string]any{"email": "ada@example.com", "about": ""}

	assignments := []Assignment{
		{Property: "email", Names: []string{"redact-email"}},
		{Property: "about", Names: []string{"drop-empty"}},
	}

	object, err := manager.TransformObject(ctx, "GET", assignments, valid, object)
	is.NoErr(err)
	is.Equal(object["email"], "a***@example.com")
	is.Equal(object["about"], "") // filters never run during post processing
}

func TestTransformObjectIgnoresInvalidProperties(t *testing.T) {
	is, ctx, manager := setupManager(t)

	valid := types.NewPropertyList("name")
	object := map[string]any{"email": "ada@example.com", "name": "Ada"}

	assignments := []Assignment{{Property: "email", Names: []string{"redact-email"}}}

	object, err := manager.TransformObject(ctx, "GET", assignments, valid, object)
	is.NoErr(err)
	is.Equal(object["email"], "ada@example.com")
}

func TestConfiguredDenyWords(t *testing.T) {
	is, ctx, _ := setupManager(t)

	manager := NewManager(NewDenyWords("winlottery"))

	valid := types.NewPropertyList("title")
	payload := map[string]any{"title": "WINLOTTERY today"}

	assignments := []Assignment{{Property: "title", Names: []string{"deny-words"}}}

	_, _, err := manager.ApplyToProperties(ctx, "POST", assignments, valid, payload)
	is.True(errors.Is(err, ngerrors.ErrPropertiesRemoved))
}

func setupManager(t *testing.T) (*is.I, context.Context, *Manager) {
	return is.New(t), context.Background(), NewManager()
}
