// Package http provides the blocking HTTP client used by the smoke test probes.
//
// It wraps the standard library's http package with additional features:
//   - A fixed per-request timeout
//   - Redirect, proxy and TLS verification settings
//   - Default headers applied to every request
//   - Fully read responses with JSON helpers
//   - Classification of transport failures
package http
