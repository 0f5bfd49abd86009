package core

// StatusValue is the externally visible state of the managed service.
type StatusValue string

const (
	// StatusActive means all dependencies and workloads are ready and the
	// service has been bootstrapped.
	StatusActive StatusValue = "active"

	// StatusWaiting means the service is waiting on a dependency or
	// workload to become ready. This is the normal pre-convergence state.
	StatusWaiting StatusValue = "waiting"

	// StatusBlocked means the service cannot make progress without
	// operator intervention.
	StatusBlocked StatusValue = "blocked"

	// StatusMaintenance means the service is performing a one-time
	// operation such as bootstrap.
	StatusMaintenance StatusValue = "maintenance"
)

// StatusSink receives status updates from the engine. This is the only
// channel through which handler-internal failures are surfaced to the user.
type StatusSink interface {
	SetStatus(value StatusValue, message string)
}
