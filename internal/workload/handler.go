package workload

import (
	"fmt"
	"sync"

	"sunbeam/internal/core"
	"sunbeam/internal/template"
	"sunbeam/pkg/logging"
)

// Callback re-enters the reconciliation engine when a workload's control
// endpoint comes up.
type Callback func(trigger core.Trigger)

// Handler manages one supervised workload container: pushing rendered
// configuration, defining the service layer, and answering the engine's
// readiness queries.
type Handler interface {
	// ContainerName returns the managed container's name.
	ContainerName() string

	// PebbleReady reports whether the container's control endpoint is
	// reachable, independent of configuration state.
	PebbleReady() bool

	// InitService pushes rendered configuration and (re)starts the
	// managed process. It must be safe to call on an already-configured,
	// already-running process.
	InitService(ctx core.RenderContext) error

	// ServiceReady reports whether the process runs the currently pushed
	// configuration.
	ServiceReady() bool
}

// PebbleHandler is the base workload handler: it manages the container's
// configuration files and directories but defines no process of its own.
// Handlers for service-running containers embed it.
type PebbleHandler struct {
	containerName string
	serviceName   string
	supervisor    core.ProcessSupervisor
	renderer      core.TemplateRenderer
	callback      Callback

	mu           sync.RWMutex
	configs      []core.ContainerConfigFile
	dirs         []core.ContainerDir
	configPushed bool
	serviceReady bool
}

// NewPebbleHandler creates the base handler for a configuration-only
// container.
func NewPebbleHandler(containerName, serviceName string, supervisor core.ProcessSupervisor, renderer core.TemplateRenderer, configs []core.ContainerConfigFile, callback Callback) *PebbleHandler {
	return &PebbleHandler{
		containerName: containerName,
		serviceName:   serviceName,
		supervisor:    supervisor,
		renderer:      renderer,
		callback:      callback,
		configs:       configs,
	}
}

func (h *PebbleHandler) ContainerName() string {
	return h.containerName
}

// PebbleReady queries the supervisor's control endpoint.
func (h *PebbleHandler) PebbleReady() bool {
	return h.supervisor.EndpointReachable()
}

// ServiceReady reports whether configuration has been written for this
// container.
func (h *PebbleHandler) ServiceReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.serviceReady
}

// ConfigPushed reports whether configuration has been pushed at least once.
func (h *PebbleHandler) ConfigPushed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.configPushed
}

// OnPebbleReady is invoked by the event substrate when the container's
// control endpoint comes up. It re-enters the engine.
func (h *PebbleHandler) OnPebbleReady(trigger core.Trigger) {
	logging.Debug("PebbleHandler", "Control endpoint for %s is up", h.containerName)
	h.callback(trigger)
}

// InitService creates the declared directories, writes all configuration
// files and marks the handler ready.
func (h *PebbleHandler) InitService(ctx core.RenderContext) error {
	if err := h.setupDirs(); err != nil {
		return err
	}
	if err := h.WriteConfig(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.serviceReady = true
	h.mu.Unlock()
	return nil
}

// WriteConfig renders and pushes every managed configuration file into the
// container. Re-pushing unchanged content is a cheap re-apply.
func (h *PebbleHandler) WriteConfig(ctx core.RenderContext) error {
	if !h.supervisor.EndpointReachable() {
		logging.Debug("PebbleHandler", "Container %s not ready, skipping config write", h.containerName)
		return nil
	}

	for _, config := range h.ManagedConfigs() {
		data, err := h.renderer.Render(template.TemplateFor(config), ctx)
		if err != nil {
			return fmt.Errorf("failed to render %s for %s: %w", config.Path, h.containerName, err)
		}
		if err := h.supervisor.PushFile(config.Path, data, config.User, config.Group); err != nil {
			return fmt.Errorf("failed to push %s into %s: %w", config.Path, h.containerName, err)
		}
	}

	h.mu.Lock()
	h.configPushed = true
	h.mu.Unlock()
	return nil
}

// setupDirs creates the declared container directories.
func (h *PebbleHandler) setupDirs() error {
	h.mu.RLock()
	dirs := append([]core.ContainerDir(nil), h.dirs...)
	h.mu.RUnlock()

	for _, d := range dirs {
		logging.Debug("PebbleHandler", "Creating %s in %s", d.Path, h.containerName)
		if err := h.supervisor.MakeDir(d.Path, d.User, d.Group); err != nil {
			return fmt.Errorf("failed to create %s in %s: %w", d.Path, h.containerName, err)
		}
	}
	return nil
}

// SetDirectories declares directories to create before configuration is
// written.
func (h *PebbleHandler) SetDirectories(dirs []core.ContainerDir) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirs = dirs
}

// ManagedConfigs returns a copy of the configuration file list.
func (h *PebbleHandler) ManagedConfigs() []core.ContainerConfigFile {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]core.ContainerConfigFile(nil), h.configs...)
}

// ConfigFileManaged reports whether a file at path is already managed.
func (h *PebbleHandler) ConfigFileManaged(path string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.configs {
		if c.Path == path {
			return true
		}
	}
	return false
}

// AddContainerConfig appends a config file unless its path is already
// managed.
func (h *PebbleHandler) AddContainerConfig(config core.ContainerConfigFile) {
	if h.ConfigFileManaged(config.Path) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs = append(h.configs, config)
}

// RemoveContainerConfig drops the config file with the given path from the
// managed list.
func (h *PebbleHandler) RemoveContainerConfig(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.configs[:0]
	for _, c := range h.configs {
		if c.Path != path {
			kept = append(kept, c)
		}
	}
	h.configs = kept
}

// SetContainerConfigs replaces the managed config file list.
func (h *PebbleHandler) SetContainerConfigs(configs []core.ContainerConfigFile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs = append([]core.ContainerConfigFile(nil), configs...)
}

// Execute runs a command in the container and logs its output.
func (h *PebbleHandler) Execute(cmd []string) (string, error) {
	stdout, err := h.supervisor.Exec(cmd)
	if err != nil {
		return "", fmt.Errorf("command failed in %s: %w", h.containerName, err)
	}
	// Not logging the command in case it included a password.
	logging.Debug("PebbleHandler", "Command complete in %s", h.containerName)
	return stdout, nil
}
