package workload

import (
	"fmt"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// WSGIPebbleHandler manages an API service container fronted by apache.
// Besides the base configuration handling it enables the wsgi site and runs
// the wsgi service through the supervisor.
type WSGIPebbleHandler struct {
	PebbleHandler
	wsgiServiceName string
}

// NewWSGIPebbleHandler creates the handler for a WSGI container. The wsgi
// site configuration file is always managed in addition to the supplied
// configs.
func NewWSGIPebbleHandler(containerName, serviceName string, supervisor core.ProcessSupervisor, renderer core.TemplateRenderer, configs []core.ContainerConfigFile, callback Callback, wsgiServiceName string) *WSGIPebbleHandler {
	h := &WSGIPebbleHandler{
		PebbleHandler:   *NewPebbleHandler(containerName, serviceName, supervisor, renderer, configs, callback),
		wsgiServiceName: wsgiServiceName,
	}
	h.AddContainerConfig(core.ContainerConfigFile{
		Path:  h.WSGIConf(),
		User:  "root",
		Group: "root",
	})
	return h
}

// WSGIConf returns the location of the wsgi site configuration file.
func (h *WSGIPebbleHandler) WSGIConf() string {
	return fmt.Sprintf("/etc/apache2/sites-available/wsgi-%s.conf", h.serviceName)
}

// Layer returns the apache wsgi service layer.
func (h *WSGIPebbleHandler) Layer() core.ServiceLayer {
	return core.ServiceLayer{
		Summary:     fmt.Sprintf("%s layer", h.serviceName),
		Description: "pebble config layer for apache wsgi",
		Services: map[string]core.ServiceDefinition{
			h.wsgiServiceName: {
				Override: "replace",
				Summary:  fmt.Sprintf("%s wsgi", h.serviceName),
				Command:  "/usr/sbin/apache2ctl -DFOREGROUND",
				Startup:  "disabled",
			},
		},
	}
}

// InitService creates the declared directories, writes configuration,
// enables the wsgi site and starts the wsgi service.
func (h *WSGIPebbleHandler) InitService(ctx core.RenderContext) error {
	if err := h.setupDirs(); err != nil {
		return err
	}
	if err := h.WriteConfig(ctx); err != nil {
		return err
	}

	if _, err := h.Execute([]string{"a2ensite", h.wsgiServiceName}); err != nil {
		// pebble reports an exited-too-quickly here even though the site
		// gets enabled, so log and carry on.
		logging.Warn("WSGIPebbleHandler", "Failed to enable %s site in apache: %v", h.wsgiServiceName, err)
	}

	if err := h.startWSGI(); err != nil {
		return err
	}

	h.mu.Lock()
	h.serviceReady = true
	h.mu.Unlock()
	return nil
}

// ServiceReady additionally requires the wsgi process to be running.
func (h *WSGIPebbleHandler) ServiceReady() bool {
	return h.PebbleHandler.ServiceReady() && h.supervisor.ServiceRunning(h.wsgiServiceName)
}

// startWSGI submits the wsgi layer and restarts the wsgi service.
func (h *WSGIPebbleHandler) startWSGI() error {
	if !h.supervisor.EndpointReachable() {
		logging.Debug("WSGIPebbleHandler",
			"%s container is not ready. Cannot start wsgi service.", h.containerName)
		return nil
	}
	if err := h.supervisor.SubmitLayer(h.serviceName, h.Layer()); err != nil {
		return fmt.Errorf("failed to submit wsgi layer for %s: %w", h.serviceName, err)
	}
	if err := h.supervisor.StartService(h.wsgiServiceName); err != nil {
		return fmt.Errorf("failed to start %s: %w", h.wsgiServiceName, err)
	}
	return nil
}
