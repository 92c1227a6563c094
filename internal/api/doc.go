// Package api exposes the task service over HTTP. Handlers decode and
// validate requests, call service.TaskService and translate its errors into
// status codes with safe messages.
package api
