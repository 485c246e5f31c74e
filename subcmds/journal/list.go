// Copyright (c) 2023 BVK Chaitanya

package journal

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/journal"
	"github.com/bvk/marketgate/subcmds/cmdutil"
)

type List struct {
	cmdutil.DBFlags

	limit  int
	action string
	asJSON bool
}

func (c *List) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.IntVar(&c.limit, "limit", 0, "when non-zero, prints only the most recent entries")
	fset.StringVar(&c.action, "action", "", "when set, prints only entries of this action")
	fset.BoolVar(&c.asJSON, "json", false, "prints entries as JSON lines")
	return fset, cli.CmdFunc(c.run)
}

func (c *List) Synopsis() string {
	return "Prints the transactions submitted by the gateway"
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not get database instance: %w", err)
	}
	defer closer()

	j := journal.New(db)

	var entries []*journal.Entry
	if c.limit > 0 && c.action == "" {
		if entries, err = j.Recent(ctx, c.limit); err != nil {
			return err
		}
		// Recent is newest first.
		sort.Slice(entries, func(i, k int) bool {
			return entries[i].Time.Before(entries[k].Time)
		})
	} else {
		collect := func(ctx context.Context, e *journal.Entry) error {
			if c.action == "" || c.action == e.Action {
				entries = append(entries, e)
			}
			return nil
		}
		if err := j.List(ctx, collect); err != nil {
			return err
		}
		if c.limit > 0 && len(entries) > c.limit {
			entries = entries[len(entries)-c.limit:]
		}
	}

	if c.asJSON {
		encoder := json.NewEncoder(os.Stdout)
		for _, e := range entries {
			if err := encoder.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s %-10s %s %s\n", e.Time.Format(time.RFC3339), e.Action, e.Signature, accountsString(e.Accounts))
	}
	return nil
}

func accountsString(accounts map[string]string) string {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteRune(' ')
		}
		fmt.Fprintf(&sb, "%s=%s", name, accounts[name])
	}
	return sb.String()
}
