// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/config"
	"github.com/bvk/marketgate/server"
	"github.com/bvk/marketgate/subcmds"
	"github.com/bvk/marketgate/subcmds/journal"
)

func main() {
	journalCmds := []cli.Command{
		new(journal.List),
		new(journal.Backup),
		new(journal.Restore),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Derive),
		new(subcmds.Unlist),
		new(subcmds.Initialize),
		cli.CommandGroup("journal", "View or backup the transaction journal", journalCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Print(err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates configuration mistakes from unreachable dependencies.
func exitCode(err error) int {
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return 2
	}
	var serr *server.StartupError
	if errors.As(err, &serr) {
		return 3
	}
	return 1
}
