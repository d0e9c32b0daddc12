package capability

import (
	"context"

	"DataWalker/internal/registry"
)

// Module is the single contract every analysis unit must satisfy. The
// engine depends on nothing else; internal algorithms stay opaque.
type Module interface {
	// Declare returns the static capability metadata for the module.
	Declare() registry.ModuleDescriptor
	// Execute runs the analysis with resolved parameters. Failures are
	// reported through the returned error; the engine converts them to
	// step-result data and never lets them propagate further.
	Execute(ctx context.Context, params map[string]any, execCtx *Context) (*Output, error)
}

// Output is the uniform result shape produced by a module invocation.
type Output struct {
	// Payload carries the module specific result value. A map payload with
	// an empty "visualization" entry signals that a chart is still missing.
	Payload any
	// Insights are human readable findings extracted during the run.
	Insights []string
}

// Context is passed to modules for every invocation.
type Context struct {
	// Source describes the data source the step is bound to. Read-only;
	// connection ownership stays with the external data layer.
	Source registry.DataSourceDescriptor
	// Resources exposes shared opaque handles supplied by the host,
	// keyed by data source id (connectors, file handles).
	Resources map[string]any
}

// Clone returns a shallow copy so modules can safely mutate the maps.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return &dup
}

// Factory creates a fresh module instance. Factories are registered in a
// Catalog; the engine decides when instances are created and cached.
type Factory func() (Module, error)
