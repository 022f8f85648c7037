// Package sshexec runs commands and file transfers on remote instances, either
// through the native SSH client or by building argument lists for the system
// ssh, rsync and aws binaries.
package sshexec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

type ExecInput struct {
	ClientConf
	ExecDetail
}

type ExecDetail struct {
	Command        []string      // argv to run, quoted for bash on the remote side
	Shell          string        // raw shell line, used instead of Command when set
	Stdin          io.Reader     // stdin if required
	Stdout         io.Writer     // stdout, leave empty for the system to capture
	Stderr         io.Writer     // stderr, leave empty for the system to capture
	SessionTimeout time.Duration // timeout after which the running session is closed
	Env            []*Env        // requires a matching AcceptEnv in sshd_config
}

type Env struct {
	Key   string
	Value string
}

type ExecOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
	Warn     []string
}

var ErrSessionTimeout = errors.New("session timeout")

func (o *ExecOutput) addWarn(f string, params ...interface{}) {
	o.Warn = append(o.Warn, fmt.Sprintf(f, params...))
}

// Exec dials, runs one command and closes the connection.
func Exec(i *ExecInput) *ExecOutput {
	conn, err := Dial(&i.ClientConf)
	if err != nil {
		return &ExecOutput{Err: err, ExitCode: -1}
	}
	defer conn.Close()
	return ExecRun(conn, &i.ExecDetail)
}

// ExecRun runs a command over an existing connection. A non-zero remote exit
// status is reported in ExitCode with Err left nil.
func ExecRun(conn *ssh.Client, i *ExecDetail) *ExecOutput {
	out := &ExecOutput{}
	session, err := conn.NewSession()
	if err != nil {
		out.Err = fmt.Errorf("failed to create session: %s", err)
		out.ExitCode = -1
		return out
	}
	defer session.Close()

	for _, kv := range i.Env {
		if err := session.Setenv(kv.Key, kv.Value); err != nil {
			out.addWarn("Failed to set env %s: %s", kv.Key, err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdin = i.Stdin
	session.Stdout = i.Stdout
	session.Stderr = i.Stderr
	if i.Stdout == nil {
		session.Stdout = &stdout
	}
	if i.Stderr == nil {
		session.Stderr = &stderr
	}

	script := i.Shell
	if script == "" {
		script = makeScript(i.Command)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(script)
	}()
	var timeout <-chan time.Time
	if i.SessionTimeout > 0 {
		timer := time.NewTimer(i.SessionTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case err = <-done:
	case <-timeout:
		session.Close()
		err = ErrSessionTimeout
	}

	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	if err == nil {
		return out
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitStatus()
		return out
	}
	out.ExitCode = -1
	out.Err = fmt.Errorf("session: %w", err)
	return out
}

// makeScript ships argv base64-encoded so no remote quoting can break it.
func makeScript(command []string) string {
	bashArray := "args=(" + strings.Join(QuoteArgs(command), " ") + ")"
	encoded := base64.StdEncoding.EncodeToString([]byte(bashArray))
	return fmt.Sprintf(`
	decoded=$(echo %s | base64 -d)
	eval "$decoded"
	"${args[@]}"
	`, encoded)
}

// QuoteArgs single-quotes each argument for a POSIX shell.
func QuoteArgs(args []string) []string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return quoted
}
