package cmd

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:generate bash -c "git rev-parse --short=7 HEAD > embed_commit.txt"
//go:generate bash -c "git describe --tags --abbrev=0 | sed 's/^v//' > embed_version.txt"

//go:embed embed_commit.txt
var vCommit string

//go:embed embed_version.txt
var vVersion string

//go:embed embed_tail.txt
var vEdition string

func GetVersion() (version, commit, edition, friendlyString string) {
	version = strings.Trim(vVersion, "\t\r\n ")
	commit = strings.Trim(vCommit, "\t\r\n ")
	edition = strings.Trim(vEdition, "\t\r\n ")
	friendlyString = "v" + version + "-" + commit + edition
	return
}

type VersionCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *VersionCmd) Execute(args []string) error {
	_, _, _, versionString := GetVersion()
	fmt.Println(versionString)
	return nil
}
