package main

import (
	"io"

	"github.com/diwise/graph-gateway/internal/pkg/application/observers"
	"github.com/diwise/graph-gateway/internal/pkg/application/router"
)

type FlagType int
type FlagMap map[FlagType]string

const (
	listenAddress FlagType = iota
	servicePort
	controlPort

	configPath
	opaPath

	logFormat
)

// AppConfig carries the configuration sources the service is initialized
// from, and the runtime state the initialized service exposes to workers.
type AppConfig struct {
	gatewayConfig io.ReadCloser
	policies      io.ReadCloser

	publicPort string

	gateway  *router.Gateway
	webhooks []*observers.Webhook
}
