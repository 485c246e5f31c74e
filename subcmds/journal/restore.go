// Copyright (c) 2023 BVK Chaitanya

package journal

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/kvutil"
	"github.com/bvk/marketgate/subcmds/cmdutil"
)

type Restore struct {
	cmdutil.DBFlags
}

func (c *Restore) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("restore", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *Restore) Synopsis() string {
	return "Restores journal entries from a backup file"
}

func (c *Restore) CommandHelp() string {
	return `

Command "restore" copies every key from a backup file into the database.
Existing entries with different keys are kept, so restoring the same backup
twice is harmless.

`
}

func (c *Restore) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("command takes one (input backup file) argument")
	}

	fp, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("could not open file %q: %w", args[0], err)
	}
	defer fp.Close()

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not get database instance: %w", err)
	}
	defer closer()

	if err := kvutil.Restore(ctx, fp, db); err != nil {
		return fmt.Errorf("could not restore from backup: %w", err)
	}
	return nil
}
