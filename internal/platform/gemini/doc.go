// Package gemini checks that the Gemini API is reachable with the configured
// key and model. The worker reports it as an optional dependency in its
// readiness output; nothing in the notification path calls the model.
package gemini
