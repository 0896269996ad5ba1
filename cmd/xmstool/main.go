package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Aquaveo/xmstool-runner/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd()
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("xmstool version %s\n", version))

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
