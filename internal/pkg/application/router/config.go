package router

import (
	"fmt"
	"io"
	"net/http"

	"github.com/diwise/graph-gateway/pkg/graphapi/types"
	yaml "gopkg.in/yaml.v2"
)

// Config is the deployment configuration of a gateway instance.
type Config struct {
	BaseURL  string `yaml:"baseUrl"`
	MaxLimit int    `yaml:"maxLimit"`

	Types       []TypeConfig       `yaml:"types"`
	Gatekeepers []GatekeeperConfig `yaml:"gatekeepers"`

	Observers   []ObserverConfig  `yaml:"observers"`
	DenyWords   []string          `yaml:"denyWords"`
	ServiceKeys map[string]string `yaml:"serviceKeys"`
	Tokens      []TokenConfig     `yaml:"tokens"`
	Seeds       []SeedConfig      `yaml:"seeds"`
	Aliases     map[string]uint64 `yaml:"aliases"`
}

// TypeConfig registers one graph object type with the api that handles it.
// An empty method list allows all methods.
type TypeConfig struct {
	Name    string   `yaml:"name"`
	Code    uint16   `yaml:"code"`
	API     string   `yaml:"api"`
	Methods []string `yaml:"methods"`
}

// GatekeeperConfig activates one named gatekeeper. The remaining fields are
// interpreted by the gatekeeper itself.
type GatekeeperConfig struct {
	Name    string            `yaml:"name"`
	Renames map[string]string `yaml:"renames"`
	Limits  map[string]int    `yaml:"limits"`
}

type ObserverConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// TokenConfig declares a static member token for deployments without an
// external authentication service.
type TokenConfig struct {
	Token    string `yaml:"token"`
	MemberID uint64 `yaml:"memberId"`
	Debug    bool   `yaml:"debug"`
	Expired  bool   `yaml:"expired"`
}

// SeedConfig bootstraps one object into a memory backed object source.
type SeedConfig struct {
	Type        string           `yaml:"type"`
	ID          string           `yaml:"id"`
	Properties  map[string]any   `yaml:"properties"`
	Connections []SeedConnection `yaml:"connections"`
}

type SeedConnection struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// LoadConfiguration loads and validates a gateway configuration.
func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %s", err.Error())
	}

	cfg := DefaultConfig()

	if err = yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %s", err.Error())
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the three built in types served
// by the source api.
func DefaultConfig() *Config {
	return &Config{
		MaxLimit: 500,
		Types: []TypeConfig{
			{Name: types.TypeMember, Code: 1, API: SourceAPIName},
			{Name: types.TypePost, Code: 2, API: SourceAPIName},
			{Name: types.TypePicture, Code: 3, API: SourceAPIName},
		},
	}
}

func (cfg *Config) validate() error {
	if cfg.MaxLimit < 1 {
		return fmt.Errorf("maxLimit must be at least 1")
	}

	names := map[string]bool{}
	codes := map[uint16]bool{}

	for _, t := range cfg.Types {
		if t.Name == "" || t.Code == 0 || t.API == "" {
			return fmt.Errorf("every type needs a name, a non zero code and an api")
		}
		if names[t.Name] {
			return fmt.Errorf("type %s registered twice", t.Name)
		}
		if codes[t.Code] {
			return fmt.Errorf("type code %d registered twice", t.Code)
		}
		names[t.Name] = true
		codes[t.Code] = true

		for _, method := range t.Methods {
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
			default:
				return fmt.Errorf("type %s allows unsupported method %s", t.Name, method)
			}
		}
	}

	// reference resolution depends on these three
	for _, required := range []string{types.TypeMember, types.TypePost, types.TypePicture} {
		if !names[required] {
			return fmt.Errorf("the %s type must be registered", required)
		}
	}

	return nil
}

// typeRegistry resolves type names and codes to registered object structs
// and tracks which methods each type accepts.
type typeRegistry struct {
	byName  map[string]types.ObjectStruct
	byCode  map[uint16]types.ObjectStruct
	codes   map[string]uint16
	methods map[string]map[string]bool
}

func newTypeRegistry(configured []TypeConfig) *typeRegistry {
	tr := &typeRegistry{
		byName:  map[string]types.ObjectStruct{},
		byCode:  map[uint16]types.ObjectStruct{},
		codes:   map[string]uint16{},
		methods: map[string]map[string]bool{},
	}

	for _, t := range configured {
		st := types.ObjectStruct{Type: t.Name, API: t.API}
		tr.byName[t.Name] = st
		tr.byCode[t.Code] = st
		tr.codes[t.Name] = t.Code

		if len(t.Methods) > 0 {
			allowed := map[string]bool{}
			for _, method := range t.Methods {
				allowed[method] = true
			}
			tr.methods[t.Name] = allowed
		}
	}

	return tr
}

func (tr *typeRegistry) StructByCode(code uint16) (types.ObjectStruct, bool) {
	st, ok := tr.byCode[code]
	return st, ok
}

func (tr *typeRegistry) StructByName(name string) (types.ObjectStruct, bool) {
	st, ok := tr.byName[name]
	return st, ok
}

func (tr *typeRegistry) CodeByName(name string) (uint16, bool) {
	code, ok := tr.codes[name]
	return code, ok
}

// allows reports whether the type accepts the method. Types without an
// explicit method list accept all of them.
func (tr *typeRegistry) allows(typeName, method string) bool {
	allowed, restricted := tr.methods[typeName]
	if !restricted {
		return true
	}
	return allowed[method]
}
