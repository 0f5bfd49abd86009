// Package workload implements the managed-process handlers of the
// reconciliation engine. Each handler owns one supervised container: it
// renders and pushes the container's configuration files, submits its
// service layer, and answers the engine's PebbleReady/ServiceReady gates.
//
// Three variants exist, mirroring how deployments actually differ:
// PebbleHandler for configuration-only containers, ServicePebbleHandler for
// containers running a supervised service, and WSGIPebbleHandler for API
// services fronted by apache.
package workload
