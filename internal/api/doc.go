// Package api exposes the external REST interface for submitting analysis
// runs, polling their status and inspecting aggregate statistics.
package api
