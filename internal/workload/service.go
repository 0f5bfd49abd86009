package workload

import (
	"fmt"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// ServicePebbleHandler manages a container that runs a supervised service.
// On top of the base configuration handling it submits the service layer and
// (re)starts the process.
type ServicePebbleHandler struct {
	PebbleHandler
	layer core.ServiceLayer
}

// NewServicePebbleHandler creates a handler for a service-running container.
func NewServicePebbleHandler(containerName, serviceName string, supervisor core.ProcessSupervisor, renderer core.TemplateRenderer, configs []core.ContainerConfigFile, layer core.ServiceLayer, callback Callback) *ServicePebbleHandler {
	return &ServicePebbleHandler{
		PebbleHandler: *NewPebbleHandler(containerName, serviceName, supervisor, renderer, configs, callback),
		layer:         layer,
	}
}

// InitService writes configuration, submits the service layer and restarts
// the service. Safe to call on an already-running, already-configured
// service.
func (h *ServicePebbleHandler) InitService(ctx core.RenderContext) error {
	if err := h.setupDirs(); err != nil {
		return err
	}
	if err := h.WriteConfig(ctx); err != nil {
		return err
	}
	if err := h.startService(); err != nil {
		return err
	}
	h.mu.Lock()
	h.serviceReady = true
	h.mu.Unlock()
	return nil
}

// ServiceReady additionally requires the supervised process to be running.
func (h *ServicePebbleHandler) ServiceReady() bool {
	return h.PebbleHandler.ServiceReady() && h.supervisor.ServiceRunning(h.serviceName)
}

// startService submits the layer and restarts the service so it picks up
// the pushed configuration.
func (h *ServicePebbleHandler) startService() error {
	if !h.supervisor.EndpointReachable() {
		logging.Debug("ServicePebbleHandler",
			"%s container is not ready. Cannot start service.", h.containerName)
		return nil
	}
	if err := h.supervisor.SubmitLayer(h.serviceName, h.layer); err != nil {
		return fmt.Errorf("failed to submit layer for %s: %w", h.serviceName, err)
	}
	if err := h.supervisor.StartService(h.serviceName); err != nil {
		return fmt.Errorf("failed to start %s: %w", h.serviceName, err)
	}
	return nil
}
