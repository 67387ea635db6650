package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/diwise/graph-gateway/internal/pkg/application/models"
	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/application/permissions"
	"github.com/diwise/graph-gateway/internal/pkg/application/processors"
	"github.com/diwise/graph-gateway/internal/pkg/application/router"
	"github.com/diwise/graph-gateway/internal/pkg/application/sessions"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/directory"
	"github.com/diwise/graph-gateway/internal/pkg/infrastructure/storage"
	api "github.com/diwise/graph-gateway/internal/pkg/presentation/api/graphapi"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/servicerunner"
	"github.com/redis/go-redis/v9"
)

const serviceName string = "graph-gateway"

var webserver = servicerunner.WithHTTPServeMux[AppConfig]
var listen = servicerunner.WithListenAddr[AppConfig]
var port = servicerunner.WithPort[AppConfig]
var pprof = servicerunner.WithPPROF[AppConfig]
var liveness = servicerunner.WithK8SLivenessProbe[AppConfig]
var muxinit = servicerunner.OnMuxInit[AppConfig]
var onshutdown = servicerunner.OnShutdown[AppConfig]

func main() {
	ctx := context.Background()
	serviceVersion := buildinfo.SourceVersion()

	flags := FlagMap{
		listenAddress: env.GetVariableOrDefault(ctx, "LISTEN_ADDRESS", ""),
		servicePort:   env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080"),
		controlPort:   env.GetVariableOrDefault(ctx, "CONTROL_PORT", ""),
		configPath:    env.GetVariableOrDefault(ctx, "GATEWAY_CONFIG", ""),
		opaPath:       env.GetVariableOrDefault(ctx, "AUTHZ_POLICIES", ""),
		logFormat:     env.GetVariableOrDefault(ctx, "LOG_FORMAT", "json"),
	}

	ctx, log, cleanup := o11y.Init(ctx, serviceName, serviceVersion, flags[logFormat])
	defer cleanup()

	cfg := &AppConfig{
		gatewayConfig: openIfNamed(flags[configPath], log.Error),
		policies:      openIfNamed(flags[opaPath], log.Error),
	}

	runner, err := initialize(ctx, flags, cfg)
	if err != nil {
		log.Error("failed to initialize service", "err", err.Error())
		os.Exit(1)
	}

	if err := runner.Run(ctx); err != nil {
		log.Error("failed to run service", "err", err.Error())
		os.Exit(1)
	}
}

func initialize(ctx context.Context, flags FlagMap, cfg *AppConfig) (servicerunner.Runner[AppConfig], error) {
	gwCfg, err := loadGatewayConfig(cfg.gatewayConfig)
	if err != nil {
		return nil, err
	}

	policies := cfg.policies
	if policies == nil {
		policies = io.NopCloser(permissions.DefaultPolicy())
	}
	defer policies.Close()

	flagResolver, err := permissions.NewResolver(ctx, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare authz policies: %w", err)
	}

	cache := storage.NewCache(ctx, redisClient(ctx))
	dispatcher := observers.NewDispatcher()

	for _, o := range gwCfg.Observers {
		hook, err := observers.NewWebhook(ctx, o.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer webhook: %w", err)
		}
		if err = hook.Start(); err != nil {
			return nil, err
		}

		dispatcher.Attach(hook)
		cfg.webhooks = append(cfg.webhooks, hook)
	}

	dir, err := newDirectory(ctx, gwCfg)
	if err != nil {
		return nil, err
	}

	source := storage.NewMemorySource()
	for _, s := range gwCfg.Seeds {
		source.Seed(s.Type, s.ID, s.Properties)
		for _, conn := range s.Connections {
			source.Connect(s.Type, s.ID, conn.Name, conn.Type, conn.ID)
		}
	}

	cfg.gateway, err = router.New(ctx, gwCfg, router.Dependencies{
		Sessions:   sessions.NewRegistry(cache, dispatcher, contextInputs(gwCfg)...),
		Models:     models.NewRegistry(nil, nil),
		Flags:      flagResolver,
		Processors: processors.NewManager(processors.NewDenyWords(gwCfg.DenyWords...)),
		Cache:      cache,
		Dispatcher: dispatcher,
		Directory:  dir,
		APIs:       []router.ObjectAPI{router.NewSourceAPI(source)},
	})
	if err != nil {
		return nil, err
	}

	publicWeb := webserver("public", listen(flags[listenAddress]), port(flags[servicePort]),
		muxinit(func(ctx context.Context, identifier string, port string, svcCfg *AppConfig, handler *http.ServeMux) error {
			svcCfg.publicPort = port
			return api.RegisterHandlers(ctx, serviceName, handler, svcCfg.gateway)
		}),
	)
	stopWebhooks := onshutdown(func(ctx context.Context, svcCfg *AppConfig) error {
		for _, hook := range svcCfg.webhooks {
			hook.Stop()
		}
		return nil
	})

	if flags[controlPort] != "" {
		controlWeb := webserver("control", listen(flags[listenAddress]), port(flags[controlPort]),
			pprof(), liveness(func() error { return nil }),
		)
		_, runner := servicerunner.New(ctx, *cfg, publicWeb, controlWeb, stopWebhooks)
		return runner, nil
	}

	_, runner := servicerunner.New(ctx, *cfg, publicWeb, stopWebhooks)

	return runner, nil
}

func loadGatewayConfig(source io.ReadCloser) (*router.Config, error) {
	if source == nil {
		return router.DefaultConfig(), nil
	}
	defer source.Close()

	return router.LoadConfiguration(source)
}

func contextInputs(gwCfg *router.Config) []sessions.InputContext {
	inputs := []sessions.InputContext{}

	if len(gwCfg.Tokens) > 0 {
		tokens := map[string]sessions.MemberToken{}
		for _, t := range gwCfg.Tokens {
			tokens[t.Token] = sessions.MemberToken{MemberID: t.MemberID, Debug: t.Debug, Expired: t.Expired}
		}
		inputs = append(inputs, sessions.NewTokenInput(sessions.NewStaticTokens(tokens)))
	}

	if len(gwCfg.ServiceKeys) > 0 {
		inputs = append(inputs, sessions.NewServiceInput(gwCfg.ServiceKeys))
	}

	return append(inputs, sessions.NewAnonymousInput())
}

// newDirectory connects the alias directory to postgres when one is
// configured and falls back to a memory backed directory seeded from the
// gateway configuration.
func newDirectory(ctx context.Context, gwCfg *router.Config) (directory.Directory, error) {
	dbCfg := directory.LoadConfiguration(ctx)

	if dbCfg.Configured() {
		pool, err := directory.Connect(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to alias directory: %w", err)
		}
		return directory.NewPostgresDirectory(pool), nil
	}

	dir := directory.NewInMemoryDirectory()
	for alias, memberID := range gwCfg.Aliases {
		dir.Register(alias, memberID)
	}

	return dir, nil
}

func redisClient(ctx context.Context) *redis.Client {
	host := env.GetVariableOrDefault(ctx, "REDIS_HOST", "")
	if host == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     host + ":" + env.GetVariableOrDefault(ctx, "REDIS_PORT", "6379"),
		Password: env.GetVariableOrDefault(ctx, "REDIS_PASSWORD", ""),
	})
}

func openIfNamed(path string, logError func(msg string, args ...any)) io.ReadCloser {
	if path == "" {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		logError("failed to open configuration file", "path", path, "err", err.Error())
		os.Exit(1)
	}

	return file
}
