package contexts

import (
	"sunbeam/internal/core"
	"sunbeam/internal/relation"
	"sunbeam/pkg/logging"
)

// BuildRenderContext collects the contributions of every ready relation
// handler and every config context into one fresh namespaced mapping.
//
// Only handlers that are ready and whose relation is still declared in the
// manifest contribute: a handler constructed before its relation left the
// manifest is silently dropped. Contributions land in registration order;
// duplicate keys across contributors are last-write-wins, deliberately
// without collision detection.
//
// The result is a transient projection used to initialize workload handlers.
// BuildRenderContext itself is side-effect free.
func BuildRenderContext(handlers *relation.Registry, configContexts []ConfigContext, manifest relation.Manifest) core.RenderContext {
	ctx := make(core.RenderContext)

	for _, h := range handlers.Handlers() {
		if !manifest.HasRelation(h.Name()) {
			logging.Info("ContextAggregator",
				"Dropping handler for relation %s, relation not present in service manifest", h.Name())
			continue
		}
		if !h.Ready() {
			continue
		}
		h.Contribute(ctx)
	}

	for _, cc := range configContexts {
		cc.Contribute(ctx)
	}

	return ctx
}
