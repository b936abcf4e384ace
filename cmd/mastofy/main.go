// Package main is the mastofy command line client.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/kimhsiao/mastofy/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.Version = Version
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return cli.ExitSuccess
	}

	// Commands report their own failures; argument and flag errors are
	// printed here.
	var exitErr *cli.ExitError
	if !stderrors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cli.ExitCommandError
	}
	return exitErr.Code
}
