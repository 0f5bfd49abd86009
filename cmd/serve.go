package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sunbeam/internal/config"
	"sunbeam/internal/core"
	"sunbeam/internal/engine"
	"sunbeam/internal/local"
	"sunbeam/internal/relation"
	"sunbeam/internal/store"
	"sunbeam/internal/template"
	"sunbeam/internal/trigger"
	"sunbeam/pkg/logging"
)

func newServeCmd() *cobra.Command {
	var (
		deploymentPath string
		debug          bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation loop for a deployment",
		Long: `Serve loads a deployment declaration, wires the local file-backed
substrate around it (relation data, container roots, status and leadership
as files next to the deployment), and runs the reconciliation loop until
interrupted. Changes to the deployment file or the relation data re-trigger
reconciliation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			logging.Init(level, os.Stdout)

			return runServe(cmd.Context(), deploymentPath)
		},
	}

	cmd.Flags().StringVar(&deploymentPath, "deployment", "deployment.yaml", "path to the deployment declaration")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func runServe(parent context.Context, deploymentPath string) error {
	deployment, err := config.Load(deploymentPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	baseDir := filepath.Dir(deploymentPath)
	relationsDir := filepath.Join(baseDir, "relations")

	// The dispatcher drives the engine; the engine's handler callbacks
	// feed the dispatcher. Break the cycle with a late-bound reference.
	var eng *engine.Engine
	dispatcher := trigger.NewDispatcher(func(t core.Trigger) error {
		return eng.Reconcile(t)
	})

	deps := engine.Dependencies{
		Negotiators: buildNegotiators(deployment, relationsDir),
		Supervisors: buildSupervisors(deployment, baseDir),
		Store:       store.New(deployment.StateDir),
		Status:      local.NewStatusFile(filepath.Join(baseDir, "status.yaml")),
		Leader:      local.NewLeaderFile(filepath.Join(baseDir, "leader")),
		Renderer:    template.NewRenderer(deployment.TemplateDir),
		Notify:      dispatcher.Trigger,
	}

	eng, err = buildEngine(deployment, deps)
	if err != nil {
		return err
	}

	configWatcher := trigger.NewConfigWatcher(deploymentPath, dispatcher, 0)
	relationWatcher := trigger.NewRelationWatcher(relationsDir, func(name string, t core.Trigger) {
		if h, ok := eng.Relations().Get(name); ok {
			h.OnChanged(t)
			return
		}
		logging.Debug("Serve", "Change on unhandled relation %s ignored", name)
	}, 0)

	if err := configWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer configWatcher.Stop()

	if err := relationWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start relation watcher: %w", err)
	}
	defer relationWatcher.Stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return dispatcher.Run(ctx)
	})

	// Initial pass: converge on whatever state already exists on disk.
	dispatcher.Trigger(core.Trigger{
		Kind:      core.TriggerManual,
		Source:    "startup",
		Timestamp: time.Now(),
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Serve", "Failed to notify service manager: %v", err)
	} else if sent {
		logging.Debug("Serve", "Notified service manager of readiness")
	}

	logging.Info("Serve", "Reconciliation loop running for %s", deployment.Service)

	err = group.Wait()
	dispatcher.Shutdown()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildEngine selects the engine composition for the deployment kind.
func buildEngine(deployment *config.Deployment, deps engine.Dependencies) (*engine.Engine, error) {
	if deployment.Kind == config.KindAPI {
		return engine.NewAPI(deployment, deps)
	}
	return engine.New(deployment, deps)
}

// buildNegotiators wires a file-backed negotiator per declared relation.
// The peer relation is store-backed and needs none.
func buildNegotiators(deployment *config.Deployment, relationsDir string) map[string]core.RelationNegotiator {
	negotiators := make(map[string]core.RelationNegotiator)
	for _, name := range deployment.Relations {
		if name == "peers" {
			continue
		}
		negotiators[name] = local.NewNegotiator(relationsDir, name)
	}
	return negotiators
}

// buildSupervisors wires a file-backed supervisor per declared container.
func buildSupervisors(deployment *config.Deployment, baseDir string) map[string]core.ProcessSupervisor {
	supervisors := make(map[string]core.ProcessSupervisor)
	for _, container := range deployment.Containers {
		supervisors[container] = local.NewSupervisor(filepath.Join(baseDir, "containers", container))
	}
	return supervisors
}

var _ relation.Manifest = (*config.Deployment)(nil)
