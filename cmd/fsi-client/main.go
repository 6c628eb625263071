// fsi-client - command line client for FSI Server
package main

import (
	"os"

	"github.com/neptunelabs/fsi-client/internal/cli"
	"github.com/neptunelabs/fsi-client/internal/version"
)

// Version information, set by ldflags.
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}
	os.Exit(cli.Execute())
}
