// Package api exposes the task manager over HTTP. Handlers decode and
// validate requests, call the manager, and translate task errors into
// status codes. Routing lives in cmd/server.
package api
