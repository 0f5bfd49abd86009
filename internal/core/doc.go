// Package core defines the shared data types and boundary capability
// interfaces of the sunbeam reconciliation engine.
//
// The engine treats every external concern (relation negotiation, workload
// supervision, template rendering, persistence, status reporting and
// leadership) as a collaborator behind one of the narrow interfaces in this
// package. Concrete implementations (and test mocks) live elsewhere; nothing
// in core performs I/O.
package core
