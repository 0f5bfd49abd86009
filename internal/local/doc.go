// Package local provides file-backed implementations of the engine's
// boundary capabilities, so a deployment can run against a plain directory
// instead of a real substrate: relation data as YAML files, a container
// root on disk, status in a status file, leadership as a marker file.
//
// This is the development and testing substrate. Production deployments
// wire real negotiators and supervisors behind the same core interfaces.
package local
