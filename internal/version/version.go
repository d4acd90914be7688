// Package version reports the build of the dp least-privilege analyzer.
// Release builds set Version, Commit and Date with -ldflags; local builds
// fall back to the module build info recorded by the Go toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Module is the import path of the dp-leastpriv module.
const Module = "github.com/pankaj-dahiya-devops/dp-leastpriv"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// resolved returns Version, or the main module version from the build info
// when Version was not set at link time and the binary was installed with
// go install.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	bi, ok := readBuildInfo()
	if !ok || bi.Main.Path != Module || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return Version
	}
	return bi.Main.Version
}

// Info returns the formatted version string printed by dp version.
func Info() string {
	return fmt.Sprintf(
		"dp version %s\ncommit: %s\nbuilt: %s\nmodule: %s\ngo: %s %s/%s\n",
		resolved(),
		Commit,
		Date,
		Module,
		runtime.Version(), runtime.GOOS, runtime.GOARCH,
	)
}
