package cmd

import (
	"fmt"
	"os"

	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/shutdown"
)

type HelpCmd struct{}

func (c *HelpCmd) Execute(args []string) error {
	return PrintHelp(false, "")
}

// PrintHelp prints usage for the command named in os.Args and exits.
func PrintHelp(isError bool, extraInfo string) error {
	args := []string{}
	for _, arg := range os.Args[1:] {
		if arg == "help" {
			continue
		}
		args = append(args, arg)
	}
	args = append(args, "-h")
	system, err := Initialize(&Init{}, []string{"help"}, nil, args...)
	if err != nil && system == nil {
		fmt.Println(err)
		os.Exit(1)
	}
	system.Parser.WriteHelp(os.Stdout)
	fmt.Println("")
	if extraInfo != "" {
		fmt.Print(extraInfo)
	}
	shutdown.WaitJobs()
	if isError {
		os.Exit(1)
	}
	os.Exit(0)
	return nil
}
