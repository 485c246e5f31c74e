// Copyright (c) 2023 BVK Chaitanya

package journal

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/kvutil"
	"github.com/bvk/marketgate/subcmds/cmdutil"
)

type Backup struct {
	cmdutil.DBFlags
}

func (c *Backup) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("backup", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *Backup) Synopsis() string {
	return "Takes a backup of the journal database into a file"
}

func (c *Backup) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("command takes one (output backup file) argument")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not get database instance: %w", err)
	}
	defer closer()

	if err := kvutil.BackupDB(ctx, db, args[0]); err != nil {
		return fmt.Errorf("could not backup the database: %w", err)
	}
	return nil
}
