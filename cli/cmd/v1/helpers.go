package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/choice"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/mattn/go-isatty"
)

var (
	errNoInstanceName = errors.New("no instance name given and no default instance configured; pass a name or run 'remote config add'")
	errNeedsYes       = errors.New("confirmation required; rerun with --yes in non-interactive mode")
	errAborted        = errors.New("aborted")
)

// prompts read from stdin; tests swap it together with interactive
var (
	stdin       = bufio.NewReader(os.Stdin)
	interactive = func() bool {
		return os.Getenv("REMOTE_NONINTERACTIVE") == "" && (isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()))
	}
	pick = choice.Pick
)

func IsInteractive() bool {
	return interactive()
}

func AskForString(prompt string) (string, error) {
	if !IsInteractive() {
		return "", errors.New("not interactive")
	}
	fmt.Printf("%s: ", prompt)
	s, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// AskWithDefault returns def when the answer is empty.
func AskWithDefault(prompt string, def string) (string, error) {
	if def != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, def)
	}
	s, err := AskForString(prompt)
	if err != nil {
		return "", err
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

func AskForInt(prompt string) (int, error) {
	s, err := AskForString(prompt)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// Confirm asks a yes/no question until it gets an answer. An empty answer picks defaultYes.
func Confirm(prompt string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	for {
		answer, err := AskForString(fmt.Sprintf("%s (%s)", prompt, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// confirmAction skips the prompt when yes is set and refuses to guess when
// nobody can answer.
func confirmAction(yes bool, prompt string) (bool, error) {
	if yes {
		return true, nil
	}
	if !IsInteractive() {
		return false, errNeedsYes
	}
	return Confirm(prompt, false)
}

// resolveInstanceName falls back to the configured default instance.
func resolveInstanceName(system *System, name string) (string, error) {
	if name == "" {
		name = system.Opts.Config.Profile.InstanceName
	}
	if name == "" {
		return "", errNoInstanceName
	}
	return validate.InstanceName(name)
}

// resolveInstance returns the instance name and its ID.
func resolveInstance(system *System, name string) (string, string, error) {
	name, err := resolveInstanceName(system, name)
	if err != nil {
		return "", "", err
	}
	id, err := system.Backend.InstanceIDByName(name)
	if err != nil {
		return name, "", err
	}
	return name, id, nil
}

// selectOne shows a pick list over rows and returns the chosen index.
func selectOne(title string, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return -1, errors.New("nothing to choose from")
	}
	if !IsInteractive() {
		return -1, fmt.Errorf("%s: no default configured and not running interactively", strings.ToLower(title))
	}
	idx, err := pick(title, choice.Labels(rows))
	if errors.Is(err, choice.ErrCancelled) {
		return -1, errAborted
	}
	return idx, err
}

// sshKeyPath picks the flag value, then the profile preference.
func sshKeyPath(system *System, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return system.Opts.Config.Profile.SSHKeyPath
}

// sshUser picks the flag value, then the profile preference, then ubuntu.
func sshUser(system *System, flagValue string) (string, error) {
	user := flagValue
	if user == "" {
		user = system.Opts.Config.Profile.SSHUser
	}
	if user == "" {
		user = defaultSSHUser
	}
	return validate.SSHUser(user)
}

const defaultSSHUser = "ubuntu"

func instanceLabel(name string, id string) string {
	return fmt.Sprintf("%s (%s)", name, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, backend.ErrInstanceNotFound) || backend.IsNotFound(err)
}
