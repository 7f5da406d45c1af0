package main

import (
	"fmt"
	"os"

	"github.com/movingbox/storemigrate/cmd"
	"github.com/movingbox/storemigrate/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	root := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	err := root.Execute()
	cmd.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
