package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	cmd "github.com/ivyleavedtoadflax/remote.py/cli/cmd/v1"
	"github.com/stretchr/testify/require"
)

func TestMain(t *testing.T) {
	os.RemoveAll("./testdata")
	os.Setenv("REMOTE_HOME", "./testdata")
	defer os.RemoveAll("./testdata")
	os.Args = []string{"remote", "version"}
	var buf bytes.Buffer
	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	origStderr := os.Stderr
	os.Stdout = w
	os.Stderr = w
	go func() {
		for {
			_, err := buf.ReadFrom(r)
			if err != nil {
				break
			}
		}
	}()
	run([]string{"version"})
	w.Close()
	os.Stdout = origStdout
	os.Stderr = origStderr
	_, err = os.Stat("./testdata")
	require.NoError(t, err)
	vString := buf.String()
	require.Equal(t, true, strings.HasPrefix(vString, "v"))
	require.Equal(t, true, strings.HasSuffix(vString, "-unofficial\n"))
}

func TestExitCodeOf(t *testing.T) {
	require.Equal(t, 0, exitCodeOf(nil))
	require.Equal(t, 1, exitCodeOf(errors.New("boom")))
	require.Equal(t, 1, exitCodeOf(&cmd.ExecuteError{Err: errors.New("reported")}))
	require.Equal(t, 3, exitCodeOf(&cmd.ExecuteError{Err: &cmd.ExitCodeError{Code: 3}}))
	require.Equal(t, 7, exitCodeOf(&cmd.ExitCodeError{Code: 7}))
}
