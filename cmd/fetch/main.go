// Command fetch queries market data providers from the command line.
package main

import (
    "context"
    "flag"
    "os"
    "path"

    "github.com/google/subcommands"
)

func main() {
    commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
    commander.Register(commander.HelpCommand(), "")
    commander.Register(commander.FlagsCommand(), "")
    for _, c := range commands(os.Stdout, openApp) {
        commander.Register(c, "market data")
    }

    flag.Parse()
    os.Exit(int(commander.Execute(context.Background())))
}
