package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ixgraph/internal/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	root := cli.NewRootCommand()
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("ixgraph version %s\n", version))

	err := root.ExecuteContext(context.Background())
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Commands report their own failures; anything else is cobra's.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
