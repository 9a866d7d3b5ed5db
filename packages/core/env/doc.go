// Package env reads line-oriented KEY=value environment files.
//
// It provides functionality for:
//   - Looking up a single key the way the smoke test resolves its backend URL
//   - Parsing a whole .env file into a map for diagnostics
//   - Building the API base from the resolved backend URL
package env
