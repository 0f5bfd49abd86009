package contexts

import (
	"sunbeam/internal/config"
	"sunbeam/internal/core"
)

// ConfigContext is a named bundle of render-context values derived purely
// from deployment configuration, independent of any relation. Contribute
// must be side-effect free.
type ConfigContext interface {
	// Namespace returns the render-context namespace this context owns.
	Namespace() string

	// Contribute writes the context's values into ctx.
	Contribute(ctx core.RenderContext)
}

// OptionsConfigContext exposes the raw deployment option map under its
// namespace, so templates can reference operator-set options directly.
type OptionsConfigContext struct {
	namespace string
	options   config.Options
}

// NewOptionsConfigContext creates the options config context.
func NewOptionsConfigContext(namespace string, options config.Options) *OptionsConfigContext {
	return &OptionsConfigContext{namespace: namespace, options: options}
}

func (c *OptionsConfigContext) Namespace() string {
	return c.namespace
}

func (c *OptionsConfigContext) Contribute(ctx core.RenderContext) {
	ns := ctx.Namespace(c.namespace)
	for k, v := range c.options {
		ns[k] = v
	}
}

// WSGIWorkerConfigContext supplies the WSGI process settings for API
// services: worker count, ownership, and the wsgi entry point name.
type WSGIWorkerConfigContext struct {
	namespace string
	service   string
	options   config.Options
}

// NewWSGIWorkerConfigContext creates the wsgi config context for service.
func NewWSGIWorkerConfigContext(namespace, service string, options config.Options) *WSGIWorkerConfigContext {
	return &WSGIWorkerConfigContext{namespace: namespace, service: service, options: options}
}

func (c *WSGIWorkerConfigContext) Namespace() string {
	return c.namespace
}

func (c *WSGIWorkerConfigContext) Contribute(ctx core.RenderContext) {
	ns := ctx.Namespace(c.namespace)
	ns["name"] = c.service
	ns["user"] = c.options.String("service-user", c.service)
	ns["group"] = c.options.String("service-group", c.service)
	ns["wsgi_admin_script"] = "/usr/bin/" + c.service + "-wsgi"
	ns["worker_count"] = c.options.Int("wsgi-workers", 4)
}
