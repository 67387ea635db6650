package router

import (
	"context"
	"fmt"

	"github.com/diwise/graph-gateway/internal/pkg/application/models"
	"github.com/diwise/graph-gateway/internal/pkg/application/requests"
	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
)

// Gatekeeper inspects and mutates parsed requests before any object
// resolution happens. Gatekeepers run in configuration order, so later ones
// observe the mutations of earlier ones.
type Gatekeeper interface {
	Name() string
	Applicable(parsed *requests.ParsedRequest) bool
	Apply(ctx context.Context, parsed *requests.ParsedRequest, payload map[string]any) error
}

func buildGatekeepers(configured []GatekeeperConfig, registry *models.Registry) ([]Gatekeeper, error) {
	gatekeepers := make([]Gatekeeper, 0, len(configured))

	for _, entry := range configured {
		switch entry.Name {
		case "rewrite":
			gatekeepers = append(gatekeepers, &rewriteGatekeeper{renames: entry.Renames})
		case "defaults":
			gatekeepers = append(gatekeepers, &defaultsGatekeeper{limits: entry.Limits})
		case "maintenance":
			gatekeepers = append(gatekeepers, &maintenanceGatekeeper{models: registry})
		default:
			return nil, fmt.Errorf("unknown gatekeeper %s", entry.Name)
		}
	}

	return gatekeepers, nil
}

// rewriteGatekeeper renames legacy connection names to their current form.
type rewriteGatekeeper struct {
	renames map[string]string
}

func (g *rewriteGatekeeper) Name() string { return "rewrite" }

func (g *rewriteGatekeeper) Applicable(parsed *requests.ParsedRequest) bool {
	_, renamed := g.renames[parsed.Connection]
	return parsed.Connection != "" && renamed
}

func (g *rewriteGatekeeper) Apply(ctx context.Context, parsed *requests.ParsedRequest, payload map[string]any) error {
	parsed.Connection = g.renames[parsed.Connection]
	return nil
}

// defaultsGatekeeper assigns per connection result limits to requests that
// did not name one themselves.
type defaultsGatekeeper struct {
	limits map[string]int
}

func (g *defaultsGatekeeper) Name() string { return "defaults" }

func (g *defaultsGatekeeper) Applicable(parsed *requests.ParsedRequest) bool {
	_, limited := g.limits[parsed.Connection]
	return parsed.Connection != "" && limited
}

func (g *defaultsGatekeeper) Apply(ctx context.Context, parsed *requests.ParsedRequest, payload map[string]any) error {
	if parsed.Options.Params["limit"] != "" {
		return nil
	}

	parsed.Options.Limit = g.limits[parsed.Connection]
	return nil
}

// maintenanceGatekeeper fails every request against a type that its model
// declares out of rotation.
type maintenanceGatekeeper struct {
	models *models.Registry
}

func (g *maintenanceGatekeeper) Name() string { return "maintenance" }

func (g *maintenanceGatekeeper) Applicable(parsed *requests.ParsedRequest) bool {
	return true
}

func (g *maintenanceGatekeeper) Apply(ctx context.Context, parsed *requests.ParsedRequest, payload map[string]any) error {
	model, err := g.models.Model(ctx, parsed.Struct.Type)
	if err != nil {
		return err
	}

	if down, message := model.UnderMaintenance(); down {
		if message == "" {
			message = fmt.Sprintf("%s objects are temporarily unavailable", parsed.Struct.Type)
		}
		return ngerrors.NewNotPermittedError(message)
	}

	return nil
}
