package component

import (
	"log/slog"

	"github.com/Chatshop-Plugin/chatshop-sub001/metric"
	"github.com/Chatshop-Plugin/chatshop-sub001/settings"
)

// Dependencies provides all external collaborators a component factory may
// need. Components receive a structured dependency set rather than reaching
// for globals; every field may be nil except Settings, which the loader
// always populates from the registry's store.
type Dependencies struct {
	Settings settings.Store          // Settings store for component-specific configuration
	Logger   *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Metrics  *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentID string) *slog.Logger {
	return d.GetLogger().With("component", componentID)
}
