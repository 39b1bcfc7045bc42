// Package events carries task lifecycle notifications between components.
//
// The task manager emits a TaskEvent whenever a task is created, started,
// finishes or is removed. Handlers such as the NATS publisher, the metrics
// collector, the credit ledger and the admission runner subscribe through an
// EventEmitter without the task package knowing about any of them.
//
// The primary components are:
// - TaskEvent: a lifecycle notification with a task snapshot as payload
// - EventHandler: interface for components that react to events
// - EventEmitter: interface for components that publish events
package events
