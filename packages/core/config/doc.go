// Package config loads the optional statusprobe configuration file.
//
// The file is searched for in the working directory under the names in
// ConfigFilenames, or given explicitly. Files ending in .yaml or .yml are
// read as YAML, anything else as JSON. Values missing from the file keep
// their defaults; command-line flags override the file.
package config
