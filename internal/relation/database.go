package relation

import (
	"strings"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// databaseDriver is the driver string contributed for rendered database
// connection configuration.
const databaseDriver = "mysql+pymysql"

// DatabaseHandler manages the service's private database relation
// ("<service>-db"). It is ready once the database server has allocated at
// least one database, and requests one on first contact.
type DatabaseHandler struct {
	name       string
	negotiator core.RelationNegotiator
	callback   Callback
	service    string
}

// NewDatabaseHandler creates the private database relation handler.
func NewDatabaseHandler(name string, negotiator core.RelationNegotiator, callback Callback, service string) *DatabaseHandler {
	return &DatabaseHandler{
		name:       name,
		negotiator: negotiator,
		callback:   callback,
		service:    service,
	}
}

func (h *DatabaseHandler) Name() string {
	return h.name
}

// Ready reports whether a database has been allocated.
func (h *DatabaseHandler) Ready() bool {
	return len(databases(h.negotiator)) > 0
}

// OnChanged requests a database if none exists yet, otherwise re-enters the
// engine with the fresh credentials.
func (h *DatabaseHandler) OnChanged(trigger core.Trigger) {
	if requestDatabaseIfMissing(h.name, h.negotiator, h.service) {
		return
	}
	h.callback(trigger)
}

// Contribute writes database credentials into the handler's namespace.
func (h *DatabaseHandler) Contribute(ctx core.RenderContext) {
	contributeDatabase(ctx, h.name, h.negotiator)
}

// SharedDatabaseHandler manages the shared database relation, through which
// several services obtain databases from one server. It carries the list of
// database names this service requires.
type SharedDatabaseHandler struct {
	name       string
	negotiator core.RelationNegotiator
	callback   Callback
	databases  []string
}

// NewSharedDatabaseHandler creates the shared database relation handler.
func NewSharedDatabaseHandler(name string, negotiator core.RelationNegotiator, callback Callback, databaseNames []string) *SharedDatabaseHandler {
	return &SharedDatabaseHandler{
		name:       name,
		negotiator: negotiator,
		callback:   callback,
		databases:  databaseNames,
	}
}

func (h *SharedDatabaseHandler) Name() string {
	return h.name
}

// Ready reports whether a database has been allocated.
func (h *SharedDatabaseHandler) Ready() bool {
	return len(databases(h.negotiator)) > 0
}

// OnChanged requests the declared databases if none exist yet, otherwise
// re-enters the engine.
func (h *SharedDatabaseHandler) OnChanged(trigger core.Trigger) {
	allocated := databases(h.negotiator)
	if len(allocated) == 0 {
		logging.Info("SharedDatabaseHandler", "Requesting databases %v on %s", h.databases, h.name)
		params := map[string]interface{}{"databases": h.databases}
		if err := h.negotiator.RequestAccess(params); err != nil {
			logging.Error("SharedDatabaseHandler", err, "Failed to request databases on %s", h.name)
		}
		return
	}
	h.callback(trigger)
}

// Contribute writes database credentials into the handler's namespace.
func (h *SharedDatabaseHandler) Contribute(ctx core.RenderContext) {
	contributeDatabase(ctx, h.name, h.negotiator)
}

// databases extracts the allocated database names from negotiated state.
func databases(n core.RelationNegotiator) []string {
	return stringSlice(n.NegotiatedValues()["databases"])
}

// requestDatabaseIfMissing asks the database server for a database when none
// has been allocated yet. The requested name suffix derives from the service
// name; database names cannot contain dashes. Returns true when a request
// was issued (the pass then waits for the allocation to land).
func requestDatabaseIfMissing(name string, n core.RelationNegotiator, service string) bool {
	if len(databases(n)) > 0 {
		return false
	}
	suffix := strings.ReplaceAll(service, "-", "_")
	logging.Info("DatabaseHandler", "Requesting a new database on %s (suffix %s)", name, suffix)
	if err := n.RequestAccess(map[string]interface{}{"name_suffix": suffix}); err != nil {
		logging.Error("DatabaseHandler", err, "Failed to request database on %s", name)
	}
	return true
}

// contributeDatabase writes the common database context entries.
func contributeDatabase(ctx core.RenderContext, name string, n core.RelationNegotiator) {
	allocated := databases(n)
	if len(allocated) == 0 {
		return
	}
	values := n.NegotiatedValues()

	ns := ctx.Namespace(contextNamespace(name))
	ns["database"] = allocated[0]
	ns["database_host"], _ = values["address"].(string)
	ns["database_password"], _ = values["password"].(string)
	ns["database_user"], _ = values["username"].(string)
	ns["database_type"] = databaseDriver
}
