package main

import "github.com/abdul-hamid-achik/statusprobe/apps/cli/cmd"

// Set at build time with -ldflags "-X main.version=... -X main.buildTime=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
