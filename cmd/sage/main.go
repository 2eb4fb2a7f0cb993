package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"sage/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitError carries an explicit process status for failures that are not a
// single classified error, such as a batch where some items failed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return services.ExitSuccess
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if code := services.ExitCode(services.KindOf(err)); code != services.ExitSuccess {
		return code
	}
	return services.ExitProcessing
}
