// Package runner executes a statusprobe smoke test run.
//
// A run resolves the backend URL, then walks a fixed sequence of probes:
//
//	Start -> RootOK -> CreateOK -> ListChecked -> Done
//
// The first failing step moves the run to Failed and no further probes are
// sent. Every failure carries an ErrorKind (ConfigError, NetworkError,
// ProtocolError or UnexpectedError); a listing that lacks the created item
// is a ValidationWarning and does not fail the run.
//
// Progress is delivered to a Reporter as the run executes.
package runner
