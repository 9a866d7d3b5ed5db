// Package assertions checks HTTP responses for the smoke test probes.
//
// Supported checks:
//   - Status code (status == 200)
//   - Body parses as JSON
//   - Field equality at a gjson path (body.message == "Hello World")
//   - Field presence (body.id exists)
//   - JSON type of the body or a field (body type array)
//   - JSON Schema validation of the whole body
//
// Every check returns a Result that formatters can report as-is.
package assertions
