// Package gemini provides an implementation of the task.Resolver interface
// that uses Google's Imagen models through the Gemini API to produce the
// artifacts of image-family generation jobs.
//
// This package is an infrastructure adapter: it translates a task snapshot
// into a generation prompt, calls the external service and stores the
// returned bytes, without exposing the details of the service to the
// scheduler.
//
// Key components:
//
// 1. Resolver:
//   - Implements the task.Resolver interface
//   - Builds prompts from per-type templates
//   - Retries transient API errors with exponential backoff and jitter
//   - Reports safety-filtered and empty responses as permanent failures
//
// 2. FileStore:
//   - Implements ArtifactStore on the local filesystem
//   - Returns locators under a configurable base URL
//
// The package depends on Google's google.golang.org/genai client library.
package gemini
