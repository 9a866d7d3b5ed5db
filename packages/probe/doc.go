// Package probe implements the three endpoint probes of the smoke test.
//
// Each probe sends exactly one request through the shared client and checks
// the response synchronously:
//   - Root: GET {base}/ must answer 200 with {"message": "Hello World"}
//   - CreateStatus: POST {base}/status must answer 200 with id, client_name
//     and timestamp; the id is handed back to the caller
//   - ListStatus: GET {base}/status must answer 200 with a JSON array, which
//     is searched for the created id
//
// Response problems are reported as *ResponseError values wrapping
// ErrProtocol. Transport failures are returned unchanged.
package probe
