package main

import (
	"errors"
	"fmt"
	"os"

	cmd "github.com/ivyleavedtoadflax/remote.py/cli/cmd/v1"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/shutdown"
)

func main() {
	exitCode := exitCodeOf(run(os.Args[1:]))
	shutdown.WaitJobs()
	os.Exit(exitCode)
}

// exitCodeOf maps a run error to the process exit code. A failed
// 'instance exec' passes the remote command's exit code through.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec *cmd.ExitCodeError
	var ee *cmd.ExecuteError
	if errors.As(err, &ee) && errors.As(ee.Err, &ec) {
		return ec.Code
	}
	if errors.As(err, &ec) {
		return ec.Code
	}
	if !errors.Is(err, cmd.ErrExecuteError) {
		fmt.Fprintln(os.Stderr, err)
	}
	return 1
}

func run(args []string) error {
	if len(args) == 0 {
		args = []string{"help"}
	}
	err := createHomeDir()
	if err != nil {
		return err
	}

	// first init call: used to run the correct Execute function only
	_, err = cmd.Initialize(&cmd.Init{
		InitBackend:        false,
		RunExecuteFunction: true,
	}, nil, nil, args...)
	return err
}

func createHomeDir() error {
	home, err := cmd.RootDir()
	if err != nil {
		return fmt.Errorf("could not determine user's home directory: %s", err)
	}
	if _, err := os.Stat(home); err != nil {
		err = os.MkdirAll(home, 0700)
		if err != nil {
			return fmt.Errorf("could not create %s, configuration files may not be available: %s", home, err)
		}
	}
	return nil
}
