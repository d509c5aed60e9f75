package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestExitErrHandlerNilError(t *testing.T) {
	exitErrHandler(nil, nil) // must not panic
}

// The tests below check the cli.ExitCoder detection that exitErrHandler
// relies on; they do not call exitErrHandler with these errors, since it
// exits the process.
func TestExitErrHandlerExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"clean exit", cli.Exit("", 0), 0},
		{"missing arg", cli.Exit("container path required", 1), 1},
		{"build failure", cli.Exit("tracewell-report: corrupt header", 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitCoder cli.ExitCoder
			require.True(t, errors.As(tt.err, &exitCoder))
			require.Equal(t, tt.wantCode, exitCoder.ExitCode())
		})
	}
}

func TestExitErrHandlerWrappedExitCoder(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner error", 7))

	var exitCoder cli.ExitCoder
	require.True(t, errors.As(wrapped, &exitCoder))
	require.Equal(t, 7, exitCoder.ExitCode())
}

func TestExitErrHandlerRegularError(t *testing.T) {
	var exitCoder cli.ExitCoder
	require.False(t, errors.As(errors.New("regular error"), &exitCoder))
}
