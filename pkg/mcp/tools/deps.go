package tools

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// ToolDeps contains the services the gateway tools run against.
type ToolDeps struct {
	QueryService  services.QueryService
	SchemaService services.SchemaService
	HealthService services.HealthService
	Version       string
	Logger        *zap.Logger
}

func (d *ToolDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
