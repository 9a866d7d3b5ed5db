// Package output provides reporters for statusprobe runs.
//
// Supported output formats:
//   - Console: the human-readable report, printed as each step runs
//   - JSON: one machine-readable document per run
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//
// Every formatter implements runner.Reporter. The machine-readable formats
// accumulate results and write them on Flush.
package output
