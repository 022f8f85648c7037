// Package pager pipes long command output through less or more.
package pager

import (
	"errors"
	"io"
	"os/exec"
)

type Pager struct {
	cmd       *exec.Cmd
	writer    io.WriteCloser
	hasColors bool
}

var lookPath = exec.LookPath

// New returns a pager writing to out; it is not running until Start.
func New(out io.Writer) (*Pager, error) {
	cmd, hasColors, err := pagerCommand()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = out
	cmd.Stderr = out
	pipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	return &Pager{cmd: cmd, writer: pipe, hasColors: hasColors}, nil
}

// HasColors is true for a nil pager, which means output goes straight to the terminal.
func (p *Pager) HasColors() bool {
	if p == nil {
		return true
	}
	return p.hasColors
}

func (p *Pager) Start() error {
	return p.cmd.Start()
}

func (p *Pager) Write(data []byte) (int, error) {
	return p.writer.Write(data)
}

// Close ends the input and waits for the user to quit the pager.
func (p *Pager) Close() error {
	_ = p.writer.Close()
	return p.cmd.Wait()
}

func pagerCommand() (*exec.Cmd, bool, error) {
	if path, err := lookPath("less"); err == nil {
		return exec.Command(path, "-R", "-S"), true, nil
	}
	if path, err := lookPath("more"); err == nil {
		return exec.Command(path), false, nil
	}
	return nil, false, errors.New("no pager found: neither 'less' nor 'more' is available")
}
